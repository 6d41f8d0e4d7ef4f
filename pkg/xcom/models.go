package xcom

// FollowerRecord is one follower of the acting user, normalized from the
// upstream timeline shape. Read-only; sourced entirely from upstream.
type FollowerRecord struct {
	ID          string `json:"id"`
	DisplayName string `json:"display_name"`
	Handle      string `json:"handle"`
	AvatarURL   string `json:"avatar_url"`
	IsVerified  bool   `json:"is_verified"`
}

// FollowerPage is one page of a listing pass. An empty NextCursor means the
// listing is complete.
type FollowerPage struct {
	Followers  []FollowerRecord `json:"followers"`
	NextCursor string           `json:"next_cursor,omitempty"`
}

// Raw upstream shapes. The Followers operation returns a timeline document:
// instructions carrying entries, where each entry is either a user item or
// a pagination cursor. Only the fields the relay reads are modeled.

type timelineResponse struct {
	Data struct {
		User struct {
			Result struct {
				Timeline struct {
					Timeline struct {
						Instructions []timelineInstruction `json:"instructions"`
					} `json:"timeline"`
				} `json:"timeline"`
			} `json:"result"`
		} `json:"user"`
	} `json:"data"`
	Errors []graphQLError `json:"errors"`
}

type timelineInstruction struct {
	Type    string          `json:"type"`
	Entries []timelineEntry `json:"entries"`
}

type timelineEntry struct {
	EntryID string `json:"entryId"`
	Content struct {
		EntryType   string `json:"entryType"`
		CursorType  string `json:"cursorType"`
		Value       string `json:"value"`
		ItemContent struct {
			ItemType    string `json:"itemType"`
			UserResults struct {
				Result struct {
					TypeName       string `json:"__typename"`
					RestID         string `json:"rest_id"`
					IsBlueVerified bool   `json:"is_blue_verified"`
					Legacy         struct {
						Name                 string `json:"name"`
						ScreenName           string `json:"screen_name"`
						ProfileImageURLHTTPS string `json:"profile_image_url_https"`
						Verified             bool   `json:"verified"`
					} `json:"legacy"`
				} `json:"result"`
			} `json:"user_results"`
		} `json:"itemContent"`
	} `json:"content"`
}

type graphQLError struct {
	Message string `json:"message"`
	Code    int    `json:"code"`
}

type removeFollowerResponse struct {
	Data struct {
		RemoveFollower struct {
			UnfollowSuccessReason string `json:"unfollow_success_reason"`
		} `json:"remove_follower"`
	} `json:"data"`
	Errors []graphQLError `json:"errors"`
}

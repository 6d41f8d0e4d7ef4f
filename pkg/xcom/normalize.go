package xcom

// normalizeFollowerPage is the single translation point between the raw
// upstream timeline shape and the relay's flat follower page. Upstream
// schema drift is absorbed here and nowhere else.
//
// Upstream always appends a bottom cursor, even on the final page, so the
// terminal state is detected by the page carrying no user entries: such a
// page normalizes to an empty NextCursor.
func normalizeFollowerPage(resp *timelineResponse) *FollowerPage {
	page := &FollowerPage{}

	for _, instruction := range resp.Data.User.Result.Timeline.Timeline.Instructions {
		if instruction.Type != "TimelineAddEntries" {
			continue
		}
		for _, entry := range instruction.Entries {
			content := entry.Content
			switch {
			case content.ItemContent.ItemType == "TimelineUser":
				user := content.ItemContent.UserResults.Result
				if user.RestID == "" {
					continue
				}
				page.Followers = append(page.Followers, FollowerRecord{
					ID:          user.RestID,
					DisplayName: user.Legacy.Name,
					Handle:      user.Legacy.ScreenName,
					AvatarURL:   user.Legacy.ProfileImageURLHTTPS,
					IsVerified:  user.Legacy.Verified || user.IsBlueVerified,
				})
			case content.CursorType == "Bottom":
				page.NextCursor = content.Value
			}
		}
	}

	if len(page.Followers) == 0 {
		page.NextCursor = ""
	}
	return page
}

package xcom

import (
	"encoding/json"
	"fmt"
	"net/url"
)

const (
	// GraphQLPath is the private API prefix the browser frontend uses.
	GraphQLPath = "/i/api/graphql"

	// DefaultPageSize matches the frontend's followers page size.
	DefaultPageSize = 20

	// MaxPageSize bounds a single listing call.
	MaxPageSize = 100
)

type followersVariables struct {
	UserID                 string `json:"userId"`
	Count                  int    `json:"count"`
	IncludePromotedContent bool   `json:"includePromotedContent"`
	Cursor                 string `json:"cursor,omitempty"`
}

// followersFeatures is the feature-flag set the frontend sends with the
// Followers query. Upstream rejects the call when expected flags are
// missing, so the full set is forwarded as-is.
const followersFeatures = `{"rweb_tipjar_consumption_enabled":true,` +
	`"responsive_web_graphql_exclude_directive_enabled":true,` +
	`"verified_phone_label_enabled":false,` +
	`"creator_subscriptions_tweet_preview_api_enabled":true,` +
	`"responsive_web_graphql_timeline_navigation_enabled":true,` +
	`"responsive_web_graphql_skip_user_profile_image_extensions_enabled":false,` +
	`"communities_web_enable_tweet_community_results_fetch":true,` +
	`"c9s_tweet_anatomy_moderator_badge_enabled":true,` +
	`"articles_preview_enabled":true,` +
	`"responsive_web_edit_tweet_api_enabled":true,` +
	`"graphql_is_translatable_rweb_tweet_is_translatable_enabled":true,` +
	`"view_counts_everywhere_api_enabled":true,` +
	`"longform_notetweets_consumption_enabled":true,` +
	`"responsive_web_twitter_article_tweet_consumption_enabled":true,` +
	`"tweet_awards_web_tipping_enabled":false,` +
	`"creator_subscriptions_quote_tweet_preview_enabled":false,` +
	`"freedom_of_speech_not_reach_fetch_enabled":true,` +
	`"standardized_nudges_misinfo":true,` +
	`"tweet_with_visibility_results_prefer_gql_limited_actions_policy_enabled":true,` +
	`"rweb_video_timestamps_enabled":true,` +
	`"longform_notetweets_rich_text_read_enabled":true,` +
	`"longform_notetweets_inline_media_enabled":true,` +
	`"responsive_web_enhance_cards_enabled":false}`

// followersURL constructs the Followers listing URL. The cursor is carried
// verbatim inside the variables object; an empty cursor starts a pass.
func followersURL(baseURL, queryID, userID, cursor string, count int) (string, error) {
	if count <= 0 {
		count = DefaultPageSize
	} else if count > MaxPageSize {
		count = MaxPageSize
	}

	variables, err := json.Marshal(followersVariables{
		UserID:                 userID,
		Count:                  count,
		IncludePromotedContent: false,
		Cursor:                 cursor,
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode variables: %w", err)
	}

	params := url.Values{}
	params.Set("variables", string(variables))
	params.Set("features", followersFeatures)

	return fmt.Sprintf("%s%s/%s/Followers?%s", baseURL, GraphQLPath, queryID, params.Encode()), nil
}

// removeFollowerURL constructs the RemoveFollower mutation URL.
func removeFollowerURL(baseURL, queryID string) string {
	return fmt.Sprintf("%s%s/%s/RemoveFollower", baseURL, GraphQLPath, queryID)
}

type removeFollowerPayload struct {
	Variables removeFollowerVariables `json:"variables"`
	QueryID   string                  `json:"queryId"`
}

type removeFollowerVariables struct {
	TargetUserID string `json:"target_user_id"`
}

package engine

import (
	"encoding/json"
	"strings"
)

// harvestableURLPatterns identifies the GraphQL endpoints whose responses
// carry post payloads. Anything else on the wire is ignored.
var harvestableURLPatterns = []string{
	"TweetResultByRestId",
	"UserByRestId",
	"SearchTimeline",
	"UserTweets",
	"UserTweetsAndReplies",
	"UserMedia",
}

// IsHarvestableURL reports whether an intercepted response URL belongs to a
// post-bearing endpoint
func IsHarvestableURL(url string) bool {
	for _, pattern := range harvestableURLPatterns {
		if strings.Contains(url, pattern) {
			return true
		}
	}
	return false
}

// ExtractPosts walks an API response body and collects every embedded post
// node. Responses nest posts at arbitrary depths inside timeline instructions,
// so the whole structure is traversed; a match does not stop descent because
// quoted and retweeted posts nest inside their parents.
func ExtractPosts(body []byte) ([]map[string]any, error) {
	var root any
	if err := json.Unmarshal(body, &root); err != nil {
		return nil, err
	}

	var posts []map[string]any
	walk(root, &posts)
	return posts, nil
}

func walk(node any, posts *[]map[string]any) {
	switch v := node.(type) {
	case map[string]any:
		if isPostNode(v) {
			*posts = append(*posts, v)
		}
		// Wrapper shapes ("tweet" for withheld content, "tweets" in
		// notification payloads) need no unwrapping here: descent visits
		// every value of every node, so the inner post is classified on
		// its own and sibling branches beside a wrapper are never lost.
		for _, child := range v {
			walk(child, posts)
		}
	case []any:
		for _, child := range v {
			walk(child, posts)
		}
	}
}

// isPostNode is the structural predicate for a post: a rest_id, a legacy
// block and the Tweet typename. User nodes carry rest_id and legacy too, so
// the typename check is what keeps them out.
func isPostNode(node map[string]any) bool {
	if _, ok := node["rest_id"]; !ok {
		return false
	}
	if _, ok := node["legacy"]; !ok {
		return false
	}
	typename, _ := node["__typename"].(string)
	return typename == "Tweet"
}

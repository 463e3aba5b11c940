package models

// Payload field names used across the engine, pipeline and store. A post is
// stored as its raw nested API payload; the canonical id is normalized into
// both IDField and RestIDField so either path finds the record.
const (
	IDField        = "id_str"
	RestIDField    = "rest_id"
	ScrapedAtField = "scraped_at"
	ScraperField   = "scraper_account"
	MediaField     = "downloaded_media"
)

// Post is one harvested record: the canonical id, the raw nested payload and
// the per-post image-processing state tracked by the ingestion pipeline.
type Post struct {
	ID      string
	Payload map[string]any
	State   ImageProcessingState
}

// CanonicalPostID resolves the canonical id from the possible source fields,
// in order of preference
func CanonicalPostID(payload map[string]any) string {
	for _, key := range []string{IDField, RestIDField, "id"} {
		if v, ok := payload[key].(string); ok && v != "" {
			return v
		}
	}
	return ""
}

// NormalizePostID stamps the canonical id into both alias fields and returns
// it; ok is false when no id-like field is present.
func NormalizePostID(payload map[string]any) (string, bool) {
	id := CanonicalPostID(payload)
	if id == "" {
		return "", false
	}
	payload[IDField] = id
	if _, present := payload[RestIDField]; !present {
		payload[RestIDField] = id
	}
	return id, true
}

// PostScreenName resolves the author handle of a post payload, trying the
// known nested paths in order. Returns "" when none match.
func PostScreenName(payload map[string]any) string {
	// v2 shape: user object beside legacy
	if _, hasLegacy := payload["legacy"]; hasLegacy {
		if user, ok := payload["user"].(map[string]any); ok {
			if legacy, ok := user["legacy"].(map[string]any); ok {
				if name, ok := legacy["screen_name"].(string); ok {
					return name
				}
			}
			if name, ok := user["screen_name"].(string); ok {
				return name
			}
		}
	}

	// v1.1 shape: user embedded directly
	if user, ok := payload["user"].(map[string]any); ok {
		if name, ok := user["screen_name"].(string); ok {
			return name
		}
	}

	if legacy, ok := payload["legacy"].(map[string]any); ok {
		if user, ok := legacy["user"].(map[string]any); ok {
			if name, ok := user["screen_name"].(string); ok {
				return name
			}
		}
		// A single mention in a legacy-only payload identifies the author
		if entities, ok := legacy["entities"].(map[string]any); ok {
			if mentions, ok := entities["user_mentions"].([]any); ok && len(mentions) == 1 {
				if m, ok := mentions[0].(map[string]any); ok {
					if name, ok := m["screen_name"].(string); ok {
						return name
					}
				}
			}
		}
	}

	// GraphQL core path
	if core, ok := payload["core"].(map[string]any); ok {
		if results, ok := core["user_results"].(map[string]any); ok {
			if result, ok := results["result"].(map[string]any); ok {
				if inner, ok := result["core"].(map[string]any); ok {
					if name, ok := inner["screen_name"].(string); ok {
						return name
					}
				}
				if legacy, ok := result["legacy"].(map[string]any); ok {
					if name, ok := legacy["screen_name"].(string); ok {
						return name
					}
				}
			}
		}
	}

	if name, ok := payload["screen_name"].(string); ok {
		return name
	}

	return ""
}

// OutboundURLs collects the expanded outbound links of a post payload
func OutboundURLs(payload map[string]any) []string {
	legacy, ok := payload["legacy"].(map[string]any)
	if !ok {
		return nil
	}
	entities, ok := legacy["entities"].(map[string]any)
	if !ok {
		return nil
	}
	urls, ok := entities["urls"].([]any)
	if !ok {
		return nil
	}

	var out []string
	for _, raw := range urls {
		entity, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		if expanded, ok := entity["expanded_url"].(string); ok && expanded != "" {
			out = append(out, expanded)
		}
	}
	return out
}

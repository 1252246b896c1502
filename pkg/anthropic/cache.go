package anthropic

// BuildCachedSystemBlocks wraps a static system prompt in a single block with
// an ephemeral cache breakpoint. An empty ttl uses the API default of 5m.
func BuildCachedSystemBlocks(text, ttl string) []SystemBlock {
	return []SystemBlock{
		{
			Text: text,
			CacheControl: &CacheControl{
				TTL: ttl,
			},
		},
	}
}

package index

// EntityMapping returns the index settings and mapping for entity indices.
// The verbatim entity body lives under "entity" and is stored but never
// indexed; everything searchable is a synthesized top-level sidecar field.
func EntityMapping(shards, replicas int) map[string]any {
	return map[string]any{
		"settings": map[string]any{
			"number_of_shards":   shards,
			"number_of_replicas": replicas,
			"analysis": map[string]any{
				"normalizer": map[string]any{
					"kw_lower": map[string]any{
						"type":   "custom",
						"filter": []string{"lowercase"},
					},
				},
			},
		},
		"mappings": map[string]any{
			"dynamic": false,
			"properties": map[string]any{
				"entity":       map[string]any{"type": "object", "enabled": false},
				"canonical_id": keyword(),
				"schema":       keyword(),
				"caption":      map[string]any{"type": "text"},
				"datasets":     keyword(),
				"referents":    keyword(),
				"target":       map[string]any{"type": "boolean"},
				"last_change":  date(),
				"first_seen":   date(),
				"last_seen":    date(),

				"names":         map[string]any{"type": "text"},
				"name_parts":    map[string]any{"type": "text"},
				"name_phonetic": lowerKeyword(),
				"name_symbols":  keyword(),

				"countries":   lowerKeyword(),
				"dates":       keyword(),
				"identifiers": lowerKeyword(),
				"phones":      keyword(),
				"emails":      lowerKeyword(),
				"addresses":   map[string]any{"type": "text"},
				"topics":      keyword(),
				"genders":     keyword(),
				"entities":    keyword(),

				"text": map[string]any{"type": "text"},
			},
		},
	}
}

// AuditLogMapping returns settings and mapping for the audit-log index.
// Single shard: lock acquisition depends on a total write order.
func AuditLogMapping() map[string]any {
	return map[string]any{
		"settings": map[string]any{
			"number_of_shards":   1,
			"number_of_replicas": 0,
		},
		"mappings": map[string]any{
			"dynamic": false,
			"properties": map[string]any{
				"alias_index":         keyword(),
				"index":               keyword(),
				"dataset":             keyword(),
				"dataset_version":     keyword(),
				"software_version":    keyword(),
				"message_type":        keyword(),
				"reindex_type":        keyword(),
				"writer":              keyword(),
				"timestamp":           epochMillis(),
				"heartbeat_timestamp": epochMillis(),
			},
		},
	}
}

func keyword() map[string]any {
	return map[string]any{"type": "keyword"}
}

func lowerKeyword() map[string]any {
	return map[string]any{"type": "keyword", "normalizer": "kw_lower"}
}

func date() map[string]any {
	return map[string]any{"type": "date", "format": "date_optional_time||yyyy-MM-dd HH:mm:ss||yyyy-MM-dd||yyyy"}
}

func epochMillis() map[string]any {
	return map[string]any{"type": "date", "format": "epoch_millis"}
}

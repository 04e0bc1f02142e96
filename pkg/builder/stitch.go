package builder

// AssociationMap holds the related rows of each source key. Keys are
// normalized; to-one relationships hold at most one row per key.
type AssociationMap map[any][]Row

// Stitch attaches related rows to every row under property, matching
// row[sourceKey] against the map keys. Collections always receive a []Row
// (empty when nothing matched); singular properties receive a Row or nil.
func Stitch(rows []Row, property, sourceKey string, related AssociationMap, collection bool) {
	for _, row := range rows {
		matched := related[normalizeKey(row[sourceKey])]
		if collection {
			if matched == nil {
				matched = []Row{}
			}
			row[property] = matched
			continue
		}
		if len(matched) == 0 {
			row[property] = nil
			continue
		}
		row[property] = matched[0]
	}
}

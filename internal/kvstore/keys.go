package kvstore

// Key layout:
//
//	node/<id>                  JSON nodeRecord
//	child/<parentID>/<childID> empty, parent index
//	cver/<parentID>            id of the last reply created under parent
//	fav/<userID>/<pathKey>     JSON SavedLineage

func nodeKey(id string) []byte {
	return []byte("node/" + id)
}

func childPrefix(parentID string) []byte {
	return []byte("child/" + parentID + "/")
}

func childKey(parentID, childID string) []byte {
	return append(childPrefix(parentID), childID...)
}

// childVersionKey is written by every reply creation and read by cascade
// deletes, so the two always conflict
func childVersionKey(parentID string) []byte {
	return []byte("cver/" + parentID)
}

func favPrefix(userID string) []byte {
	return []byte("fav/" + userID + "/")
}

func favKey(userID, pathKey string) []byte {
	return append(favPrefix(userID), pathKey...)
}

package transparency

import (
	"sort"

	"github.com/JAFLabs/bytecodealliance-registry/pkg/hashing"
	"github.com/JAFLabs/bytecodealliance-registry/pkg/store"
)

// computeRoots derives a log root (the chained hash of the batch's
// record ids, per log) and a map root (the hash of every log's root,
// sorted by log id for determinism) from one batch of leaves. This is
// a reference Merkle-ish construction sufficient to exercise the
// core's checkpoint pipeline in tests; it is not a production
// transparency log, which is treated here as an external collaborator.
func computeRoots(alg hashing.Alg, leaves []store.LogLeaf) (mapRoot, logRoot hashing.AnyHash, err error) {
	byLog := make(map[string][]hashing.AnyHash)
	var logIDs []string
	for _, leaf := range leaves {
		key := leaf.LogID.String()
		if _, ok := byLog[key]; !ok {
			logIDs = append(logIDs, key)
		}
		byLog[key] = append(byLog[key], leaf.RecordID)
	}
	sort.Strings(logIDs)

	var flat []byte
	var logRootBytes []byte
	for _, logID := range logIDs {
		records := byLog[logID]
		root, hErr := chainHash(alg, records)
		if hErr != nil {
			return hashing.AnyHash{}, hashing.AnyHash{}, hErr
		}
		flat = append(flat, []byte(logID)...)
		flat = append(flat, ':')
		flat = append(flat, root.Bytes...)
		logRootBytes = append(logRootBytes, root.Bytes...)
	}

	mapRoot, err = hashing.Sum(alg, flat)
	if err != nil {
		return hashing.AnyHash{}, hashing.AnyHash{}, err
	}
	logRoot, err = hashing.Sum(alg, logRootBytes)
	if err != nil {
		return hashing.AnyHash{}, hashing.AnyHash{}, err
	}
	return mapRoot, logRoot, nil
}

func chainHash(alg hashing.Alg, ids []hashing.AnyHash) (hashing.AnyHash, error) {
	var acc []byte
	for _, id := range ids {
		acc = append(acc, id.Bytes...)
	}
	return hashing.Sum(alg, acc)
}

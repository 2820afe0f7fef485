package align

import "gonum.org/v1/gonum/spatial/r3"

// GatherCorrespondences walks the destination identifiers in lexicographic
// order, keeps those also present in source and returns both camera centers
// for each. Pairs where either center cannot be computed are skipped. An
// empty set is returned when nothing matches.
func GatherCorrespondences(source, dest PoseMap) CorrespondenceSet {
	var (
		ids     []string
		srcVecs []r3.Vec
		dstVecs []r3.Vec
	)
	for _, id := range dest.Keys() {
		se, ok := source[id]
		if !ok {
			continue
		}
		cs, err := CameraCenter(se)
		if err != nil {
			Logf("correspondence %s: source: %v", id, err)
			continue
		}
		cd, err := CameraCenter(dest[id])
		if err != nil {
			Logf("correspondence %s: destination: %v", id, err)
			continue
		}
		ids = append(ids, id)
		srcVecs = append(srcVecs, cs)
		dstVecs = append(dstVecs, cd)
	}

	set := CorrespondenceSet{IDs: ids}
	if len(ids) == 0 {
		return set
	}
	set.Source = vecsToMatrix(srcVecs)
	set.Dest = vecsToMatrix(dstVecs)
	return set
}

package image

// LegacyLayerDescriptor describes a layer of the deprecated v1.0 layout,
// where ordering is carried by per-layer parent links instead of an ordered
// manifest list. Loading the v1.0 layout itself is not supported; the sort is
// kept for diagnostics over such layouts.
type LegacyLayerDescriptor struct {
	LayerID  string
	ParentID string
}

// SortLegacyLayers sorts layer descriptors based on their parent-child
// relationship. The first element of the result is the bottom, root layer;
// the last element is the top layer. Fails with a NonSortableLayersError when
// the descriptors do not form a single linear chain, after at most n*n
// placement attempts.
func SortLegacyLayers(layers []LegacyLayerDescriptor) ([]LegacyLayerDescriptor, error) {
	if len(layers) == 0 {
		return layers, nil
	}

	sorted := []LegacyLayerDescriptor{}
	toSort := append([]LegacyLayerDescriptor{}, layers...)

	// bound the number of placement attempts so that a broken ancestry
	// cannot spin forever
	maxCycles := len(layers) * len(layers)
	cycles := 0

	for len(toSort) > 0 {
		cycles++
		current := toSort[0]
		toSort = toSort[1:]
		switch {
		case len(sorted) == 0:
			sorted = append(sorted, current)
		case current.ParentID == sorted[len(sorted)-1].LayerID:
			// the last sorted layer is our parent
			sorted = append(sorted, current)
		case current.LayerID == sorted[0].ParentID:
			// the first sorted layer is our child
			sorted = append([]LegacyLayerDescriptor{current}, sorted...)
		default:
			// cannot decide yet, try again later
			toSort = append(toSort, current)
			if cycles > maxCycles {
				leftover := make([]string, 0, len(toSort))
				for _, remaining := range toSort {
					leftover = append(leftover, remaining.LayerID)
				}
				return nil, &NonSortableLayersError{Leftover: leftover}
			}
		}
	}
	return sorted, nil
}

package domain

// RegionKind identifies the semantic role of a clustered page region.
type RegionKind string

const (
	RegionVendor    RegionKind = "vendor"
	RegionClient    RegionKind = "client"
	RegionLineItems RegionKind = "line_items"
	RegionTax       RegionKind = "tax"
	RegionTotals    RegionKind = "totals"
	RegionUnknown   RegionKind = "unknown"
)

// Region groups fragments that belong to the same semantic block. Every
// input fragment belongs to exactly one region; fragments matching no
// clustering rule land in the unknown region.
type Region struct {
	Kind      RegionKind     `json:"kind"`
	Fragments []TextFragment `json:"fragments"`
	BBox      BBox           `json:"bbox"`
}

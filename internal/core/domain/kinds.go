package domain

import (
	"fmt"
	"sort"
	"strings"
)

// RecordKind tags the variant of a map feature.
type RecordKind string

const (
	KindHydrant            RecordKind = "hydrant"
	KindUndergroundHydrant RecordKind = "underground_hydrant"
	KindWaterSource        RecordKind = "water_source"
	KindSuctionPoint       RecordKind = "suction_point"
	KindVehicle            RecordKind = "vehicle"
	KindHose               RecordKind = "hose"
	KindMarker             RecordKind = "marker"
)

// KindInfo is one row of the kind dispatch table.
type KindInfo struct {
	Kind  RecordKind          `json:"kind"`
	Label string              `json:"label"`
	Icon  string              `json:"icon"`
	Title func(Record) string `json:"-"`
}

var kindTable = map[RecordKind]KindInfo{
	KindHydrant: {
		Kind: KindHydrant, Label: "Überflurhydrant", Icon: "hydrant.png",
		Title: hydrantTitle("Hydrant"),
	},
	KindUndergroundHydrant: {
		Kind: KindUndergroundHydrant, Label: "Unterflurhydrant", Icon: "hydrant_unterflur.png",
		Title: hydrantTitle("Unterflurhydrant"),
	},
	KindWaterSource: {
		Kind: KindWaterSource, Label: "Löschteich", Icon: "loeschteich.png",
		Title: func(r Record) string { return "Löschteich " + r.Name },
	},
	KindSuctionPoint: {
		Kind: KindSuctionPoint, Label: "Saugstelle", Icon: "saugstelle.png",
		Title: func(r Record) string { return "Saugstelle " + r.Name },
	},
	KindVehicle: {
		Kind: KindVehicle, Label: "Fahrzeug", Icon: "fahrzeug.png",
		Title: func(r Record) string {
			if fw, ok := r.Fields["feuerwehr"].(string); ok && fw != "" {
				return fmt.Sprintf("%s %s", r.Name, fw)
			}
			return r.Name
		},
	},
	KindHose: {
		Kind: KindHose, Label: "Leitung", Icon: "leitung.png",
		Title: func(r Record) string { return "Leitung " + r.Name },
	},
	KindMarker: {
		Kind: KindMarker, Label: "Markierung", Icon: "marker.png",
		Title: func(r Record) string { return r.Name },
	},
}

// hydrantTitle renders "<prefix> <name>" plus the flow rate when the source had one.
func hydrantTitle(prefix string) func(Record) string {
	return func(r Record) string {
		title := prefix + " " + r.Name
		if flow, ok := r.Fields["leistung"].(float64); ok && flow > 0 {
			title += fmt.Sprintf(" (%g l/min)", flow)
		}
		return title
	}
}

// Info returns the dispatch entry for the kind. Unknown kinds render as plain markers.
func (k RecordKind) Info() KindInfo {
	if info, ok := kindTable[k]; ok {
		return info
	}
	return kindTable[KindMarker]
}

// Valid reports whether k is one of the known kinds.
func (k RecordKind) Valid() bool {
	_, ok := kindTable[k]
	return ok
}

// ParseKind maps a source value onto a kind, falling back to def.
func ParseKind(s string, def RecordKind) RecordKind {
	k := RecordKind(strings.ToLower(strings.TrimSpace(s)))
	switch k {
	case "":
		return def
	case "unterflurhydrant", "unterflur":
		return KindUndergroundHydrant
	case "ueberflurhydrant", "überflurhydrant", "überflur":
		return KindHydrant
	case "loeschteich", "löschteich", "teich":
		return KindWaterSource
	case "saugstelle":
		return KindSuctionPoint
	}
	if k.Valid() {
		return k
	}
	return def
}

// Kinds lists the dispatch table ordered by kind.
func Kinds() []KindInfo {
	out := make([]KindInfo, 0, len(kindTable))
	for _, info := range kindTable {
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Kind < out[j].Kind })
	return out
}

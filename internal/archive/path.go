package archive

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkt"
	"github.com/paulmach/orb/geojson"

	"backend-traillog/internal/tracking"
)

// LineString builds the travelled path from the location points, in
// lng/lat order. Photos and notes are not part of the path.
func LineString(points []tracking.RoutePoint) orb.LineString {
	var ls orb.LineString
	for _, p := range points {
		if p.Kind != tracking.KindLocation || p.Lat == nil || p.Lng == nil {
			continue
		}
		ls = append(ls, orb.Point{*p.Lng, *p.Lat})
	}
	return ls
}

// PathWKT returns the path as WKT, or nil when fewer than two locations were
// recorded and there is no line to store.
func PathWKT(points []tracking.RoutePoint) *string {
	ls := LineString(points)
	if len(ls) < 2 {
		return nil
	}
	s := wkt.MarshalString(ls)
	return &s
}

// FeatureCollection renders a route as GeoJSON: one LineString feature for
// the path plus one Point feature per annotated photo or note.
func FeatureCollection(r Route) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()

	if ls := LineString(r.Points); len(ls) >= 2 {
		f := geojson.NewFeature(ls)
		f.ID = r.ID
		f.Properties["session_id"] = r.SessionID
		f.Properties["total_distance_km"] = r.TotalDistanceKm
		f.Properties["elapsed_ms"] = r.ElapsedMs
		fc.Append(f)
	}

	for _, p := range r.Points {
		if p.Kind == tracking.KindLocation || p.Lat == nil || p.Lng == nil {
			continue
		}
		f := geojson.NewFeature(orb.Point{*p.Lng, *p.Lat})
		f.Properties["type"] = string(p.Kind)
		f.Properties["timestamp"] = p.Timestamp
		switch p.Kind {
		case tracking.KindPhoto:
			f.Properties["photo"] = p.PhotoRef
			if p.Caption != "" {
				f.Properties["caption"] = p.Caption
			}
		case tracking.KindText:
			f.Properties["content"] = p.Content
		}
		fc.Append(f)
	}
	return fc
}

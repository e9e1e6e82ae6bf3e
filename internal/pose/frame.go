package pose

import "github.com/banshee-data/optotrak/internal/geom"

// TrackerToHost converts a point from the tracker's native frame to the host
// frame:
//
//	host.X = tracker.Y
//	host.Y = tracker.Z
//	host.Z = tracker.X
func TrackerToHost(p geom.Point3) geom.Point3 {
	return geom.Point3{X: p.Y, Y: p.Z, Z: p.X}
}

// HostToTracker is the inverse of TrackerToHost:
//
//	tracker.X = host.Z
//	tracker.Y = host.X
//	tracker.Z = host.Y
func HostToTracker(p geom.Point3) geom.Point3 {
	return geom.Point3{X: p.Z, Y: p.X, Z: p.Y}
}

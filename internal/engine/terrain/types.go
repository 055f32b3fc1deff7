// Package terrain provides chunk mesh building and heightmap utilities.
package terrain

// Vertex represents a terrain mesh vertex.
type Vertex struct {
	Position [3]float32 // Local to the chunk node origin
	Normal   [3]float32
	TexCoord [2]float32
}

// Mesh holds a regular grid mesh for one chunk.
//
// Vertices are laid out row-major: index = z*Resolution + x, the same order
// as heightmap samples. Indices form two counter-clockwise triangles (viewed
// from +Y) per grid quad.
type Mesh struct {
	Vertices   []Vertex
	Indices    []uint32
	Resolution int     // Vertices per side
	Spacing    float32 // Distance between adjacent vertices
	Bounds     Bounds
}

// Bounds holds the axis-aligned bounding box of the mesh in local space.
type Bounds struct {
	Min [3]float32
	Max [3]float32
}

// Heightmap holds normalized height samples for one chunk.
// Row r is local Z, column c is local X.
type Heightmap struct {
	Samples []float32
	Size    int
}

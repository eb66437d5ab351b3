package engine

// Reachable returns every corner a robot standing on (x, y) can walk to
// without crossing a wall, mapped to the fewest moves it takes. (x, y) maps
// to 0. It returns nil when (x, y) is outside the world.
func (w *World) Reachable(x, y int) map[Point]int {
	if w.OutOfBounds(x, y) {
		return nil
	}
	start := Point{X: x, Y: y}
	dist := map[Point]int{start: 0}
	queue := []Point{start}
	for len(queue) > 0 {
		p := queue[0]
		queue = queue[1:]
		for _, d := range AllDirections() {
			if w.CheckWall(p.X, p.Y, d) {
				continue
			}
			nx, ny := AdjacentCorner(p.X, p.Y, d)
			next := Point{X: nx, Y: ny}
			if _, seen := dist[next]; !seen {
				dist[next] = dist[p] + 1
				queue = append(queue, next)
			}
		}
	}
	return dist
}

package main

import "fmt"

// STEP_TIMEOUT: 10s

type point struct {
	x, y int
}

func (p point) sum() int {
	return p.x + p.y
}

func apply(n int, f func(int) int) int {
	return f(n)
}

func scale(p point, k int) point {
	return point{p.x * k, p.y * k}
}

func main() {
	p := point{1, 2}
	//Breakpoint!
	r := apply(scale(p, 3).sum(), func(v int) int { return v + 1 })
	fmt.Println(r)
}

// SMART_STEP_INTO_BY_INDEX: 3
// STEP_OUT: 1
// RESUME: 1

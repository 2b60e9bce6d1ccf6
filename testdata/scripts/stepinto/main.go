package main

import "fmt"

type counter struct {
	n int
}

func (c *counter) inc() int {
	c.n++
	return c.n
}

func twice(c *counter) int {
	c.inc()
	return c.inc()
}

func main() {
	c := &counter{}
	//Breakpoint!
	x := twice(c)
	fmt.Println(x)
}

// STEP_INTO: 3
// RESUME: 1

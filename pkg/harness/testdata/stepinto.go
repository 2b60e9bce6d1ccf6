package main

import "fmt"

func add(a, b int) int {
	return a + b
}

func main() {
	//Breakpoint!
	x := add(1, 2)
	fmt.Println(x)
}

// STEP_INTO: 1

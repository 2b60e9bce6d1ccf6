package main

import "fmt"

func leaf(n int) int {
	//Breakpoint!
	return n * 2
}

func middle(n int) int {
	return leaf(n) + 1
}

func main() {
	fmt.Println(middle(20))
}

// STEP_OUT: 2

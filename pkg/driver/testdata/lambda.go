package main

import "fmt"

func foo(f func()) {
	f()
}

func main() {
	//Breakpoint!
	foo(func() {
		fmt.Println("lambda")
	})
}

// SMART_STEP_INTO_BY_INDEX: 1

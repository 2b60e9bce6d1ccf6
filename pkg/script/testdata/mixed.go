package main

import "fmt"

func foo(f func() int) int { return f() }

func bar() int { return 1 }

func main() {
	//Breakpoint!
	fmt.Println(foo(func() int { return bar() }))
}

// STEP_TIMEOUT: 10s
// STEP_INTO: 2
// SMART_STEP_INTO_BY_INDEX: 1
// STEP_OUT
// STEP_INTO:
// RESUME: 1

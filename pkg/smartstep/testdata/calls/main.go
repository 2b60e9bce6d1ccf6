package main

import (
	"fmt"
	"strings"
	"time"
)

type T struct {
	n int
}

func (t *T) Inc() *T {
	t.n++
	return t
}

func (t T) Value() int {
	return t.n
}

type Writer interface {
	Write(p []byte) (int, error)
}

func foo(f func()) {
	f()
}

func a(x int) int { return x + 1 }

func b(x int) int { return x * 2 }

func c() int { return 3 }

func main() {
	t := &T{}
	foo(func() { // lambda-arg
		fmt.Println("in lambda")
	})
	x := a(b(c())) // nested
	fmt.Println(a(1), b(2), c()) // siblings
	n := t.Inc().Value() // chained
	s := strings.ToUpper(string([]byte("x"))) // conversion
	y := len(s) + int(x) // builtins
	defer fmt.Println(a(y)) // deferred
	func() { // immediate
		helper(n)
	}()
	var w Writer
	if w != nil {
		w.Write(nil) // interface
	}

	// blank line above and a comment here
	fmt.Println(x,
		b(y)) // multiline
	fmt.Println(a(int(time.Duration(y) * time.Millisecond))) // imported-conversion
}

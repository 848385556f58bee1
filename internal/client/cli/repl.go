package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

// printlnFn is a test seam for user-facing output. In tests, replace it with a stub.
var printlnFn = fmt.Println

// execIface is the command surface the REPL drives. The real App satisfies
// it; tests use a lightweight stub.
type execIface interface {
	AddMeal(ctx context.Context) error
	AddWorkout(ctx context.Context) error
	List(ctx context.Context, args []string) error
	Sync(ctx context.Context) error
	Status(ctx context.Context) error
	Purge(ctx context.Context, args []string) error
	Foods(ctx context.Context) error
	Color(ctx context.Context) error
}

const helpText = "Available commands: addmeal, addworkout, (l)ist <meals|workouts>, sync, status, purge <meals|workouts>, foods, color, exit"

// runREPL reads commands line by line from reader and dispatches them to a.
// It returns on EOF, on "exit"/"quit" or when ctx is done. Command errors are
// printed and the loop keeps going.
func runREPL(ctx context.Context, a execIface, statusFn func() string, reader *bufio.Reader) {
	for {
		if ctx.Err() != nil {
			return
		}
		printlnFn(fmt.Sprintf("nt %s> ", statusFn()))

		line, err := reader.ReadString('\n')
		if err != nil && !(errors.Is(err, io.EOF) && line != "") {
			return
		}
		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}
		cmd, args := parts[0], parts[1:]

		var cmdErr error
		switch cmd {
		case "help":
			printlnFn(helpText)
		case "addmeal":
			cmdErr = a.AddMeal(ctx)
		case "addworkout":
			cmdErr = a.AddWorkout(ctx)
		case "l", "list":
			cmdErr = a.List(ctx, args)
		case "sync":
			cmdErr = a.Sync(ctx)
		case "status":
			cmdErr = a.Status(ctx)
		case "purge":
			cmdErr = a.Purge(ctx, args)
		case "foods":
			cmdErr = a.Foods(ctx)
		case "color":
			cmdErr = a.Color(ctx)
		case "exit", "quit":
			printlnFn("Bye!")
			return
		default:
			printlnFn("Unknown command:", cmd)
		}

		if cmdErr != nil {
			printlnFn("Error:", cmdErr)
		}
	}
}

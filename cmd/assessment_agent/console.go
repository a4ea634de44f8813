package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
)

// errQuit is returned when the candidate ends input.
var errQuit = errors.New("input closed")

// console reads answers from the terminal.
type console struct {
	in  *bufio.Scanner
	out io.Writer
}

func newConsole(in io.Reader, out io.Writer) *console {
	s := bufio.NewScanner(in)
	s.Buffer(make([]byte, 64*1024), 1<<20)
	return &console{in: s, out: out}
}

func (c *console) say(format string, args ...any) {
	_, _ = fmt.Fprintf(c.out, format+"\n", args...)
}

// ask prints prompt and returns the next trimmed line.
func (c *console) ask(prompt string) (string, error) {
	_, _ = fmt.Fprintf(c.out, "%s: ", prompt)
	if !c.in.Scan() {
		if err := c.in.Err(); err != nil {
			return "", err
		}
		return "", errQuit
	}
	return strings.TrimSpace(c.in.Text()), nil
}

// askBlock reads lines until a line holding a single ".".
func (c *console) askBlock(prompt string) (string, error) {
	c.say("%s (finish with a line containing only \".\")", prompt)
	var lines []string
	for c.in.Scan() {
		line := c.in.Text()
		if strings.TrimSpace(line) == "." {
			return strings.Join(lines, "\n"), nil
		}
		lines = append(lines, line)
	}
	if err := c.in.Err(); err != nil {
		return "", err
	}
	if len(lines) > 0 {
		return strings.Join(lines, "\n"), nil
	}
	return "", errQuit
}

// confirm asks a yes/no question. Anything but y or yes is no.
func (c *console) confirm(prompt string) (bool, error) {
	answer, err := c.ask(prompt + " [y/N]")
	if err != nil {
		return false, err
	}
	answer = strings.ToLower(answer)
	return answer == "y" || answer == "yes", nil
}

// choose asks for a 1-based option number, or accepts one of the names.
func (c *console) choose(prompt string, names []string) (int, error) {
	for {
		answer, err := c.ask(prompt)
		if err != nil {
			return 0, err
		}
		for i, name := range names {
			if strings.EqualFold(answer, name) || answer == fmt.Sprint(i+1) {
				return i, nil
			}
		}
		c.say("Please enter a number between 1 and %d.", len(names))
	}
}

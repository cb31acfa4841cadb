// Copyright 2021-2022, Offchain Labs, Inc.
// For license information, see https://github.com/nitro/blob/master/LICENSE

package colors

import (
	"fmt"
	"regexp"
)

var Red = "\033[31;1m"
var Green = "\033[32;1m"
var Blue = "\033[34;1m"
var Yellow = "\033[33;1m"
var Mint = "\033[38;5;48;1m"
var Grey = "\033[90m"

var Clear = "\033[0;0m"

var uncolor = regexp.MustCompile("\x1b\\[([0-9]+;)*[0-9]+m")
var unwhite = regexp.MustCompile(`\s+`)

// Sprint wraps the formatted args in the given color, resetting afterwards.
func Sprint(color string, args ...interface{}) string {
	return color + fmt.Sprint(args...) + Clear
}

func Sprintf(color string, format string, args ...interface{}) string {
	return color + fmt.Sprintf(format, args...) + Clear
}

func PrintBlue(args ...interface{}) {
	fmt.Println(Sprint(Blue, args...))
}

func PrintGrey(args ...interface{}) {
	fmt.Println(Sprint(Grey, args...))
}

func PrintMint(args ...interface{}) {
	fmt.Println(Sprint(Mint, args...))
}

func PrintRed(args ...interface{}) {
	fmt.Println(Sprint(Red, args...))
}

func PrintYellow(args ...interface{}) {
	fmt.Println(Sprint(Yellow, args...))
}

// Uncolor strips escape sequences and collapses whitespace, for comparing terminal output.
func Uncolor(text string) string {
	text = uncolor.ReplaceAllString(text, "")
	return unwhite.ReplaceAllString(text, " ")
}

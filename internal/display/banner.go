package display

import (
	"fmt"
	"os"

	"github.com/dsmmcken/vdo-samurai-sub000/internal/term"
)

// PrintBanner prints the ASCII art banner; uses Magenta if colors are enabled.
func PrintBanner() {
	if term.Magenta != "" {
		fmt.Fprint(os.Stdout, term.Magenta)
	}
	fmt.Fprint(os.Stdout, ` ____                                         _ `+`
/ ___|   __ _  _ __ ___   _   _  _ __   __ _ (_)
\___ \  / _`+"`"+` || '_ `+"`"+` _ \ | | | || '__| / _`+"`"+` || |
 ___) || (_| || | | | | || |_| || |   | (_| || |
|____/  \__,_||_| |_| |_| \__,_||_|    \__,_||_|
`)
	if term.Magenta != "" {
		fmt.Fprintln(os.Stdout, term.NC)
	}
}

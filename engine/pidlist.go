package engine

import (
	"bufio"
	"os"
	"strconv"
	"strings"

	"github.com/teranos/regalsync/errors"
)

// ErrBlankPID is returned when an identifier list contains an empty line
var ErrBlankPID = errors.New("blank identifier in list")

// ReadPIDList reads one identifier per line. Only line breaks are removed;
// any blank line fails the whole list so no item runs against a partial
// or shifted list.
func ReadPIDList(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.MarkFatal(errors.Wrapf(err, "failed to open identifier list"))
	}
	defer f.Close()

	var pids []string
	var blank []string
	sc := bufio.NewScanner(f)
	line := 0
	for sc.Scan() {
		line++
		text := sc.Text()
		if strings.TrimSpace(text) == "" {
			blank = append(blank, strconv.Itoa(line))
			continue
		}
		pids = append(pids, text)
	}
	if err := sc.Err(); err != nil {
		return nil, errors.MarkFatal(errors.Wrapf(err, "failed to read identifier list %s", path))
	}
	if len(blank) > 0 {
		err := errors.Wrapf(ErrBlankPID, "%s line %s", path, strings.Join(blank, ", "))
		return nil, errors.MarkFatal(errors.WithHint(err, "remove empty lines from the identifier list"))
	}
	return pids, nil
}

package store

import (
	"errors"
	"sort"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/Cyberlandslaget/angrepa/internal/model"
)

func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

// naturalIPLess orders dotted-quad IP strings numerically per octet, so
// "10.0.9.1" sorts before "10.0.10.1" instead of after it as plain string
// comparison would put it. Strings that don't parse as four numeric
// octets fall back to lexicographic comparison.
func naturalIPLess(a, b string) bool {
	oa, ok1 := octets(a)
	ob, ok2 := octets(b)
	if !ok1 || !ok2 {
		return a < b
	}
	for i := 0; i < 4; i++ {
		if oa[i] != ob[i] {
			return oa[i] < ob[i]
		}
	}
	return false
}

func octets(ip string) ([4]int, bool) {
	var out [4]int
	parts := strings.Split(ip, ".")
	if len(parts) != 4 {
		return out, false
	}
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return out, false
		}
		out[i] = n
	}
	return out, true
}

// SortTeamsByIP sorts teams in place by natural IP order, for operator
// inspection convenience.
func SortTeamsByIP(teams []model.Team) {
	sort.Slice(teams, func(i, j int) bool { return naturalIPLess(teams[i].IP, teams[j].IP) })
}

// SortIPsNatural sorts a list of IP strings in place.
func SortIPsNatural(ips []string) {
	sort.Slice(ips, func(i, j int) bool { return naturalIPLess(ips[i], ips[j]) })
}

package route

import (
	"github.com/wesleywu/routesock/internal/iface"
)

func resolveInterface(name string) (uint32, error) {
	idx, err := iface.Index(name)
	if err != nil {
		return 0, &Error{Kind: KindNotFound, Op: "interface", Cause: err}
	}
	return idx, nil
}

// Package applist implements the "applicationListing" domain binding of
// spec.md §4.3: the installed-application list.
package applist

import (
	"github.com/nsdtx/dtx/pkg/dtx"
	"github.com/nsdtx/dtx/pkg/dtx/archive"
)

// Identifier is the capability identifier for this binding's channel. Note
// the misspelling ("applictionListing") is part of the wire contract
// (spec.md §6), not a typo in this package.
const Identifier = "com.apple.instruments.server.services.device.applictionListing"

// AppList returns the installed-applications list.
func AppList(s *dtx.Session) ([]*archive.OrderedMap, error) {
	ch, err := s.MakeChannel(Identifier)
	if err != nil {
		return nil, err
	}
	args := dtx.NewBuilder().AppendObject(map[string]interface{}{}).AppendObject("")
	if err := ch.InvokeSelector("installedApplicationsMatching:registerUpdateToken:", args.Entries(), true); err != nil {
		return nil, err
	}
	ret, err := ch.Receive()
	if err != nil {
		return nil, err
	}
	items, ok := ret.([]interface{})
	if !ok {
		return nil, &dtx.DomainError{Op: "app_list", Reason: "unexpected return shape"}
	}
	out := make([]*archive.OrderedMap, 0, len(items))
	for _, it := range items {
		if m, ok := it.(*archive.OrderedMap); ok {
			out = append(out, m)
		}
	}
	return out, nil
}

// Package typeunit places composite types with an ODR identifier in type
// units shared by every compile unit of a module.
//
// A type unit is built speculatively. Types it refers to get type units of
// their own, and the whole nest is committed once the outermost type is
// complete. If any of them needed an entry in the address pool the nest is
// not address independent: it is rolled back and the outermost type is
// built in the requesting compile unit instead.
package typeunit

import (
	"crypto/md5"
	"encoding/binary"

	"github.com/orizon-lang/dwarfemit/internal/cli"
	"github.com/orizon-lang/dwarfemit/internal/debug/unit"
	"github.com/orizon-lang/dwarfemit/internal/meta"
)

// Signature returns the type signature of identifier: the high half of its
// MD5 sum read little endian.
func Signature(identifier string) uint64 {
	sum := md5.Sum([]byte(identifier))
	return binary.LittleEndian.Uint64(sum[8:16])
}

// Cache is the module's identifier to signature map. It implements
// unit.TypeUnits.
type Cache struct {
	ctx *unit.Context
	log *cli.Logger

	signatures map[string]uint64
	// names detects two identifiers with one signature.
	names    map[uint64]string
	building []*unit.TypeUnit

	hash func(string) uint64
}

// New returns an empty cache for the units of ctx and installs it there.
func New(ctx *unit.Context, log *cli.Logger) *Cache {
	c := &Cache{
		ctx:        ctx,
		log:        log,
		signatures: make(map[string]uint64),
		names:      make(map[uint64]string),
		hash:       Signature,
	}
	ctx.TypeUnits = c
	return c
}

// Len returns the number of identifiers with a signature, including
// those of units still under construction.
func (c *Cache) Len() int { return len(c.signatures) }

// Lookup returns the signature assigned to identifier.
func (c *Cache) Lookup(identifier string) (uint64, bool) {
	sig, ok := c.signatures[identifier]
	return sig, ok
}

// AddType implements unit.TypeUnits.
func (c *Cache) AddType(requester *unit.Unit, owner *unit.CompileUnit, ct *meta.CompositeType) unit.TypeUnitResult {
	addr := c.ctx.Addr
	// The nest being built is lost already; skip the work.
	if len(c.building) > 0 && addr.HasBeenUsed() {
		return unit.TypeUnitResult{Outcome: unit.Abandoned}
	}

	id := ct.Identifier
	if sig, ok := c.signatures[id]; ok {
		return unit.TypeUnitResult{Signature: sig, Outcome: unit.Committed}
	}
	sig := c.hash(id)
	if other, ok := c.names[sig]; ok && other != id {
		c.log.Warn("type signature %#016x of %q already belongs to %q; building %q in unit %d", sig, id, other, id, requester.ID())
		return unit.TypeUnitResult{Outcome: unit.Inline}
	}

	top := len(c.building) == 0
	var mark unit.Mark
	if top {
		addr.ResetUsedFlag()
		mark = c.ctx.Mark()
	}

	tu := c.ctx.NewTypeUnit(owner, id, sig)
	c.signatures[id] = sig
	c.names[sig] = id
	c.building = append(c.building, tu)
	tu.Build(ct)

	if !top {
		return unit.TypeUnitResult{Signature: sig, Outcome: unit.Committed}
	}

	built := c.building
	c.building = nil
	if addr.HasBeenUsed() {
		for _, b := range built {
			delete(c.signatures, b.Identifier())
			delete(c.names, b.Signature())
		}
		c.ctx.Rollback(mark)
		c.log.Debug("type %q refers to the address pool; building it in unit %d (%d type units dropped)", id, requester.ID(), len(built))
		return unit.TypeUnitResult{Outcome: unit.Inline}
	}
	for _, b := range built {
		c.ctx.CommitTypeUnit(b)
	}
	return unit.TypeUnitResult{Signature: sig, Outcome: unit.Committed}
}

// Package amregistry implements the SQL access-method catalog: naming and
// persisting which access methods exist and which handler builds their
// capability descriptor, mirroring amcmds.c's CreateAccessMethod and
// RemoveAccessMethodById. PostgreSQL stores this mapping as rows in the
// pg_am system catalog and resolves amhandler through the function OID
// catalog (lookup_am_handler_func); here the durable half is a bbolt bucket
// keyed by access-method name, and the "function OID" half is an in-process
// map from handler name to a constructor registered by whatever binary
// wires the access methods together (see cmd/pagectl), since this module
// has no catalog of installed functions to resolve handler names against.
package amregistry

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	bolt "go.etcd.io/bbolt"
)

var amBucket = []byte("pg_am")

// catalogEntry is the durable record behind one pg_am row: an amoid
// analogue (a uuid, since this catalog has no OID counter to draw from)
// paired with the handler name CreateAccessMethod resolved at registration
// time.
type catalogEntry struct {
	id          uuid.UUID
	handlerName string
}

func (e catalogEntry) serialize() []byte {
	idBytes, _ := e.id.MarshalBinary()
	return append(idBytes, e.handlerName...)
}

func deserializeCatalogEntry(data []byte) (catalogEntry, error) {
	if len(data) < 16 {
		return catalogEntry{}, fmt.Errorf("amregistry: truncated catalog entry")
	}
	id, err := uuid.FromBytes(data[:16])
	if err != nil {
		return catalogEntry{}, errors.Wrap(err, "amregistry: decode catalog entry id")
	}
	return catalogEntry{id: id, handlerName: string(data[16:])}, nil
}

// Routine is the capability descriptor a handler returns, mirroring the
// fields of IndexAmRoutine this project's access methods actually use.
type Routine struct {
	ID            uuid.UUID
	Name          string
	CanOrder      bool
	CanUnique     bool
	CanMultiCol   bool
	AmOptionalKey bool
}

// HandlerFunc builds a Routine on demand, mirroring an am handler function.
type HandlerFunc func() Routine

// Registry is the durable access-method catalog plus the in-process handler
// table lookup_am_handler_func would otherwise resolve through pg_proc.
type Registry struct {
	db       *bolt.DB
	handlers map[string]HandlerFunc
}

// Open opens (creating if needed) the catalog database at dbPath.
func Open(dbPath string) (*Registry, error) {
	db, err := bolt.Open(dbPath, 0600, nil)
	if err != nil {
		return nil, errors.Wrap(err, "amregistry: open catalog")
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(amBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, errors.Wrap(err, "amregistry: init catalog")
	}
	return &Registry{db: db, handlers: make(map[string]HandlerFunc)}, nil
}

// Close releases the catalog database.
func (r *Registry) Close() error {
	return r.db.Close()
}

// RegisterHandler installs a handler constructor under handlerName, so
// Create can later reference it by that name. Handlers are process-local:
// every binary that opens a Registry must call RegisterHandler for every
// handler name it expects CreateAccessMethod to be able to resolve.
func (r *Registry) RegisterHandler(handlerName string, fn HandlerFunc) {
	r.handlers[handlerName] = fn
}

// Create registers a new access method named amName using handlerName's
// handler, mirroring CreateAccessMethod: refuses a duplicate name and an
// unresolvable handler, the same two failure modes as lookup_am_handler_func
// and the pg_am uniqueness check.
func (r *Registry) Create(amName, handlerName string) (uuid.UUID, error) {
	if _, ok := r.handlers[handlerName]; !ok {
		return uuid.Nil, fmt.Errorf("amregistry: handler function %q is undefined", handlerName)
	}
	entry := catalogEntry{id: uuid.New(), handlerName: handlerName}
	err := r.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(amBucket)
		if b.Get([]byte(amName)) != nil {
			return fmt.Errorf("amregistry: access method %q already exists", amName)
		}
		return b.Put([]byte(amName), entry.serialize())
	})
	if err != nil {
		return uuid.Nil, err
	}
	return entry.id, nil
}

// Remove drops amName from the catalog, mirroring RemoveAccessMethodById.
func (r *Registry) Remove(amName string) error {
	return r.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(amBucket)
		if b.Get([]byte(amName)) == nil {
			return fmt.Errorf("amregistry: cache lookup failed for access method %q", amName)
		}
		return b.Delete([]byte(amName))
	})
}

// Lookup resolves amName to its handler's Routine, mirroring the handler
// call GetIndexAmRoutineByAmId performs after resolving amhandler.
func (r *Registry) Lookup(amName string) (Routine, error) {
	var entry catalogEntry
	err := r.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(amBucket)
		v := b.Get([]byte(amName))
		if v == nil {
			return fmt.Errorf("amregistry: access method %q does not exist", amName)
		}
		decoded, err := deserializeCatalogEntry(v)
		if err != nil {
			return err
		}
		entry = decoded
		return nil
	})
	if err != nil {
		return Routine{}, err
	}
	fn, ok := r.handlers[entry.handlerName]
	if !ok {
		return Routine{}, fmt.Errorf("amregistry: handler function %q is undefined", entry.handlerName)
	}
	routine := fn()
	routine.ID = entry.id
	return routine, nil
}

// List returns every registered access-method name.
func (r *Registry) List() ([]string, error) {
	var names []string
	err := r.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(amBucket)
		return b.ForEach(func(k, _ []byte) error {
			names = append(names, string(k))
			return nil
		})
	})
	return names, err
}

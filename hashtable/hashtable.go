package hashtable

import "fmt"
import "sync"
import "sync/atomic"
import "unsafe"

// a hash table keyed by kernel addresses and call numbers. lookups take no
// lock; updates lock one bucket. elements in a bucket are kept sorted by key
// hash so that a reader racing with an update still finds existing keys.

type elem_t struct {
	key     uintptr
	value   interface{}
	keyHash uint32
	next    *elem_t
}

type bucket_t struct {
	sync.Mutex
	first *elem_t
}

type Hashtable_t struct {
	table []*bucket_t
	n     int64
}

func MkHash(size int) *Hashtable_t {
	if size <= 0 {
		panic("bad size")
	}
	ht := &Hashtable_t{}
	ht.table = make([]*bucket_t, size)
	for i := range ht.table {
		ht.table[i] = &bucket_t{}
	}
	return ht
}

func (ht *Hashtable_t) String() string {
	s := ""
	for i, b := range ht.table {
		if loadptr(&b.first) != nil {
			s += fmt.Sprintf("b %d:\n", i)
			for e := loadptr(&b.first); e != nil; e = loadptr(&e.next) {
				s += fmt.Sprintf("(%#x, %v), ", e.key, e.value)
			}
			s += "\n"
		}
	}
	return s
}

func (ht *Hashtable_t) Len() int {
	return int(atomic.LoadInt64(&ht.n))
}

func (ht *Hashtable_t) Get(key uintptr) (interface{}, bool) {
	kh := khash(key)
	b := ht.table[ht.hash(kh)]

	for e := loadptr(&b.first); e != nil; e = loadptr(&e.next) {
		if e.keyHash == kh && e.key == key {
			return e.value, true
		}
	}
	return nil, false
}

// Set inserts key, or replaces its value. it returns the previous value and
// whether key was new.
func (ht *Hashtable_t) Set(key uintptr, value interface{}) (interface{}, bool) {
	kh := khash(key)
	b := ht.table[ht.hash(kh)]
	b.Lock()
	defer b.Unlock()

	add := func(last *elem_t) {
		if last == nil {
			n := &elem_t{key: key, value: value, keyHash: kh, next: b.first}
			storeptr(&b.first, n)
		} else {
			n := &elem_t{key: key, value: value, keyHash: kh, next: last.next}
			storeptr(&last.next, n)
		}
		atomic.AddInt64(&ht.n, 1)
	}

	var last *elem_t
	for e := b.first; e != nil; e = e.next {
		if e.keyHash == kh && e.key == key {
			// replace the element so readers see the old or the new
			// value, never a torn one
			old := e.value
			n := &elem_t{key: key, value: value, keyHash: kh, next: e.next}
			if last == nil {
				storeptr(&b.first, n)
			} else {
				storeptr(&last.next, n)
			}
			return old, false
		}
		if kh < e.keyHash {
			add(last)
			return nil, true
		}
		last = e
	}
	add(last)
	return nil, true
}

func (ht *Hashtable_t) Del(key uintptr) {
	kh := khash(key)
	b := ht.table[ht.hash(kh)]
	b.Lock()
	defer b.Unlock()

	var last *elem_t
	for e := b.first; e != nil; e = e.next {
		if e.keyHash == kh && e.key == key {
			if last == nil {
				storeptr(&b.first, e.next)
			} else {
				storeptr(&last.next, e.next)
			}
			atomic.AddInt64(&ht.n, -1)
			return
		}
		if kh < e.keyHash {
			break
		}
		last = e
	}
	panic("del of non-existing key")
}

// Iter calls f on every element until f returns false.
func (ht *Hashtable_t) Iter(f func(key uintptr, value interface{}) bool) {
	for _, b := range ht.table {
		for e := loadptr(&b.first); e != nil; e = loadptr(&e.next) {
			if !f(e.key, e.value) {
				return
			}
		}
	}
}

func (ht *Hashtable_t) hash(keyHash uint32) int {
	return int(keyHash % uint32(len(ht.table)))
}

func loadptr(e **elem_t) *elem_t {
	ptr := (*unsafe.Pointer)(unsafe.Pointer(e))
	return (*elem_t)(atomic.LoadPointer(ptr))
}

func storeptr(p **elem_t, n *elem_t) {
	ptr := (*unsafe.Pointer)(unsafe.Pointer(p))
	atomic.StorePointer(ptr, unsafe.Pointer(n))
}

func khash(key uintptr) uint32 {
	h := uint32(key) ^ uint32(uint64(key)>>32)
	return uint32(2654435761) * h
}

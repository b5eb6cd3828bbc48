// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

package cache

import (
	"testing"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("LRU", func() {
	It("evicts the least recently used entry at capacity", func() {
		l := New[int](2, nil)
		l.Put("a", 1)
		l.Put("b", 2)
		l.Put("c", 3) // evicts "a"

		_, ok := l.Get("a")
		Expect(ok).To(BeFalse())

		v, ok := l.Get("b")
		Expect(ok).To(BeTrue())
		Expect(v).To(Equal(2))
	})

	It("promotes on Get so the promoted entry survives eviction", func() {
		l := New[int](2, nil)
		l.Put("a", 1)
		l.Put("b", 2)
		l.Get("a") // promote "a"
		l.Put("c", 3) // evicts "b", not "a"

		_, ok := l.Get("b")
		Expect(ok).To(BeFalse())

		v, ok := l.Get("a")
		Expect(ok).To(BeTrue())
		Expect(v).To(Equal(1))
	})

	It("invokes onEvict", func() {
		evicted := make([]string, 0)
		l := New[int](1, func(key string, _ int) {
			evicted = append(evicted, key)
		})
		l.Put("a", 1)
		l.Put("b", 2)

		Expect(evicted).To(Equal([]string{"a"}))
	})
})

func TestCache(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Test cache")
}

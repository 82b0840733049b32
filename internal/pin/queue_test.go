package pin

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/veezhang/sgengo/internal/heap"
	"github.com/veezhang/sgengo/internal/obj"
)

func TestQueueSortDedupe(t *testing.T) {
	q := &Queue{}
	q.Add(obj.Addr(30))
	q.Add(obj.Addr(10))
	q.Add(obj.Addr(30))
	q.Add(obj.Addr(20))
	q.Add(obj.Addr(10))

	q.SortDedupe()

	assert.Equal(t, []obj.Addr{10, 20, 30}, q.Addrs)
}

func TestQueueFindSectionRange(t *testing.T) {
	q := &Queue{Addrs: []obj.Addr{5, 100, 150, 190, 300}}
	sec := &heap.Section{Data: 100, EndData: 200}

	got := q.FindSectionRange(sec)

	assert.Equal(t, []obj.Addr{100, 150, 190}, got)
}

func TestQueueFindSectionRangeEmpty(t *testing.T) {
	q := &Queue{Addrs: []obj.Addr{5, 10}}
	sec := &heap.Section{Data: 100, EndData: 200}

	assert.Nil(t, q.FindSectionRange(sec))
}

func TestQueueReset(t *testing.T) {
	q := &Queue{Addrs: []obj.Addr{1, 2, 3}}
	q.Reset()
	assert.Empty(t, q.Addrs)
}

package events

import (
	"fmt"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("buffer", func() {
	It("keeps insertion order", func() {
		buffer := newBuffer(10)

		for i := 1; i <= 3; i++ {
			Expect(buffer.PushBack(&message{Kind: JobCreated, Data: []byte(fmt.Sprintf("msg%d", i))})).To(BeFalse())
		}
		Expect(buffer.Size()).To(Equal(3))

		Expect(buffer.Pop().Data).To(Equal([]byte("msg1")))
		Expect(buffer.Pop().Data).To(Equal([]byte("msg2")))
		Expect(buffer.Size()).To(Equal(1))

		Expect(buffer.Pop().Data).To(Equal([]byte("msg3")))
		Expect(buffer.Size()).To(Equal(0))
		Expect(buffer.Pop()).To(BeNil())
	})

	It("drops the oldest message when full", func() {
		buffer := newBuffer(2)

		Expect(buffer.PushBack(&message{Subject: "a"})).To(BeFalse())
		Expect(buffer.PushBack(&message{Subject: "b"})).To(BeFalse())
		Expect(buffer.PushBack(&message{Subject: "c"})).To(BeTrue())

		Expect(buffer.Size()).To(Equal(2))
		Expect(buffer.Dropped()).To(Equal(1))
		Expect(buffer.Pop().Subject).To(Equal("b"))
		Expect(buffer.Pop().Subject).To(Equal("c"))
	})

	It("wraps around the ring", func() {
		buffer := newBuffer(3)
		for i := 0; i < 7; i++ {
			buffer.PushBack(&message{Subject: fmt.Sprint(i)})
			Expect(buffer.Pop().Subject).To(Equal(fmt.Sprint(i)))
		}
		Expect(buffer.Size()).To(Equal(0))
	})

	It("accepts concurrent writers", func() {
		buffer := newBuffer(100)

		var wg sync.WaitGroup
		for i := 0; i < 50; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				buffer.PushBack(&message{Kind: JobApplied})
			}()
		}
		wg.Wait()

		Expect(buffer.Size()).To(Equal(50))
		count := 0
		for buffer.Pop() != nil {
			count++
		}
		Expect(count).To(Equal(50))
	})
})

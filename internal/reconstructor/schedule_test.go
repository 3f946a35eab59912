package reconstructor_test

import (
	"bytes"
	"strings"

	"github.com/EmmaQiaoCh/embedding-profiler/internal/domain"
	"github.com/EmmaQiaoCh/embedding-profiler/internal/reconstructor"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Profiler inputs", func() {
	Describe("Interest file", func() {
		It("should list event names deduplicated in first-appearance order", func() {
			spec := &domain.InterestSpec{
				Layers: []*domain.LayerSpec{
					{
						Name:           "fc1",
						ForwardEvents:  []string{"gemm", "relu"},
						BackwardEvents: []string{"gemm", "gemm_bias"},
					},
					{
						Name:          "emb",
						ForwardEvents: []string{"all2all", "gemm"},
					},
				},
			}

			var buf bytes.Buffer
			Expect(reconstructor.WriteInterestFile(&buf, spec)).To(Succeed())
			Expect(buf.String()).To(Equal("gemm\nrelu\ngemm_bias\nall2all\n"))
		})

		It("should round-trip through ReadInterestFile", func() {
			spec := domain.DLRMInterestSpec()

			var buf bytes.Buffer
			Expect(reconstructor.WriteInterestFile(&buf, spec)).To(Succeed())

			names, err := reconstructor.ReadInterestFile(&buf)
			Expect(err).ToNot(HaveOccurred())
			Expect(names).To(Equal(spec.EventNames()))
		})

		It("should skip blank lines when reading", func() {
			names, err := reconstructor.ReadInterestFile(strings.NewReader("gemm\n\n  \nall2all\n"))
			Expect(err).ToNot(HaveOccurred())
			Expect(names).To(Equal([]string{"gemm", "all2all"}))
		})
	})

	Describe("Schedule file", func() {
		spec := &domain.InterestSpec{
			Layers: []*domain.LayerSpec{
				{
					Name:               "fc1",
					ForwardEvents:      []string{"gemm.fprop"},
					BackwardEvents:     []string{"gemm.bprop"},
					BackwardOccurrence: 2,
				},
				{
					Name:          "emb",
					ForwardEvents: []string{"all2all"},
				},
			},
		}

		It("should lead with the warmup count and schedule one event per iteration", func() {
			var buf bytes.Buffer
			Expect(reconstructor.WriteSchedule(&buf, spec, 2, 10)).To(Succeed())

			lines := strings.Split(buf.String(), "\n")
			Expect(lines).To(Equal([]string{
				"10",
				"gemm.fprop 11 fc1 0",
				"gemm.fprop 12 fc1 0",
				"gemm.bprop 13 fc1 2",
				"gemm.bprop 14 fc1 2",
				"all2all 15 emb 0",
				"all2all 16 emb 0",
			}))
		})

		It("should schedule forward events before backward events within a layer", func() {
			var buf bytes.Buffer
			Expect(reconstructor.WriteSchedule(&buf, spec, 1, 0)).To(Succeed())

			out := buf.String()
			Expect(strings.Index(out, "gemm.fprop")).To(BeNumerically("<", strings.Index(out, "gemm.bprop")))
			Expect(strings.Index(out, "gemm.bprop")).To(BeNumerically("<", strings.Index(out, "all2all")))
		})
	})
})

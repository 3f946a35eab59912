package domain_test

import (
	"os"
	"path/filepath"

	"github.com/EmmaQiaoCh/embedding-profiler/internal/domain"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("InterestSpec", func() {
	Describe("Match", func() {
		spec := &domain.InterestSpec{
			Layers: []*domain.LayerSpec{
				{Name: "fc1", ForwardEvents: []string{"gemm"}, ForwardOccurrence: 0, BackwardEvents: []string{"gemm_bwd"}, BackwardOccurrence: 1},
				{Name: "fc2", ForwardEvents: []string{"gemm"}, ForwardOccurrence: 1, BackwardEvents: []string{"gemm_bwd"}, BackwardOccurrence: 0},
			},
		}

		It("should resolve same-named events by occurrence index", func() {
			layer, ok := spec.Match("gemm", 0)
			Expect(ok).To(BeTrue())
			Expect(layer).To(Equal("fc1"))

			layer, ok = spec.Match("gemm", 1)
			Expect(ok).To(BeTrue())
			Expect(layer).To(Equal("fc2"))
		})

		It("should resolve backward events independently of forward events", func() {
			layer, ok := spec.Match("gemm_bwd", 1)
			Expect(ok).To(BeTrue())
			Expect(layer).To(Equal("fc1"))

			layer, ok = spec.Match("gemm_bwd", 0)
			Expect(ok).To(BeTrue())
			Expect(layer).To(Equal("fc2"))
		})

		It("should not match unknown events or unclaimed occurrences", func() {
			_, ok := spec.Match("relu", 0)
			Expect(ok).To(BeFalse())

			_, ok = spec.Match("gemm", 2)
			Expect(ok).To(BeFalse())
		})

		It("should never match a layer's backward slot when it declares no backward events", func() {
			forwardOnly := &domain.InterestSpec{
				Layers: []*domain.LayerSpec{
					{Name: "emb", ForwardEvents: []string{"all2all"}, ForwardOccurrence: 1},
				},
			}

			// BackwardOccurrence defaults to 0; the zero value must not act as
			// an implicit claim on occurrence 0.
			_, ok := forwardOnly.Match("all2all", 0)
			Expect(ok).To(BeFalse())
		})

		It("should let the first declared layer win an overlapping claim", func() {
			overlapping := &domain.InterestSpec{
				Layers: []*domain.LayerSpec{
					{Name: "first", ForwardEvents: []string{"gemm"}, ForwardOccurrence: 0},
					{Name: "second", ForwardEvents: []string{"gemm"}, ForwardOccurrence: 0},
				},
			}

			layer, ok := overlapping.Match("gemm", 0)
			Expect(ok).To(BeTrue())
			Expect(layer).To(Equal("first"))
		})
	})

	Describe("Validate", func() {
		It("should accept a spec without overlapping claims", func() {
			Expect(domain.DLRMInterestSpec().Validate()).To(BeEmpty())
		})

		It("should warn once per overlapping (event, occurrence) slot", func() {
			overlapping := &domain.InterestSpec{
				Layers: []*domain.LayerSpec{
					{Name: "first", ForwardEvents: []string{"gemm"}, ForwardOccurrence: 0},
					{Name: "second", ForwardEvents: []string{"gemm"}, ForwardOccurrence: 0},
				},
			}

			warnings := overlapping.Validate()
			Expect(warnings).To(HaveLen(1))
			Expect(warnings[0]).To(ContainSubstring("first"))
			Expect(warnings[0]).To(ContainSubstring("second"))
		})

		It("should warn when one layer's directions claim the same slot", func() {
			selfOverlap := &domain.InterestSpec{
				Layers: []*domain.LayerSpec{
					{Name: "fc1", ForwardEvents: []string{"gemm"}, ForwardOccurrence: 0, BackwardEvents: []string{"gemm"}, BackwardOccurrence: 0},
				},
			}

			Expect(selfOverlap.Validate()).To(HaveLen(1))
		})
	})

	Describe("EventNames", func() {
		It("should flatten the reference DLRM spec in declaration order", func() {
			Expect(domain.DLRMInterestSpec().EventNames()).To(Equal([]string{
				"fc.fprop",
				"fc.bprop",
				"embedding.forward",
				"embedding.backward",
				"interaction.fprop",
				"interaction.bprop",
				"fc8.fprop",
				"fc8.bprop",
			}))
		})
	})

	Describe("LoadInterestSpec", func() {
		It("should parse a YAML spec file", func() {
			path := filepath.Join(GinkgoT().TempDir(), "interest.yaml")
			Expect(os.WriteFile(path, []byte(`
layers:
  - name: fc1
    forward_events: [gemm]
    forward_occurrence: 0
    backward_events: [gemm_bwd]
    backward_occurrence: 1
  - name: emb
    forward_events: [all2all]
    forward_occurrence: 0
`), 0644)).To(Succeed())

			spec, err := domain.LoadInterestSpec(path)
			Expect(err).ToNot(HaveOccurred())
			Expect(spec.Layers).To(HaveLen(2))
			Expect(spec.Layers[0].Name).To(Equal("fc1"))
			Expect(spec.Layers[0].BackwardOccurrence).To(Equal(1))
			Expect(spec.Layers[1].ForwardEvents).To(Equal([]string{"all2all"}))
		})

		It("should reject a spec that declares no layers", func() {
			path := filepath.Join(GinkgoT().TempDir(), "interest.yaml")
			Expect(os.WriteFile(path, []byte("layers: []\n"), 0644)).To(Succeed())

			_, err := domain.LoadInterestSpec(path)
			Expect(err).To(MatchError(domain.ErrNoInterestSpec))
		})
	})

	Describe("The reference DLRM spec", func() {
		It("should attribute backward MLP kernels in reverse layer order", func() {
			spec := domain.DLRMInterestSpec()

			layer, ok := spec.Match("fc.bprop", 6)
			Expect(ok).To(BeTrue())
			Expect(layer).To(Equal("BottomMLP.fc1"))

			layer, ok = spec.Match("fc.bprop", 0)
			Expect(ok).To(BeTrue())
			Expect(layer).To(Equal("TopMLP.fc7"))

			layer, ok = spec.Match("fc.fprop", 6)
			Expect(ok).To(BeTrue())
			Expect(layer).To(Equal("TopMLP.fc7"))
		})
	})
})

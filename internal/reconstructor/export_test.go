package reconstructor_test

import (
	"bytes"
	"strings"

	"github.com/EmmaQiaoCh/embedding-profiler/internal/domain"
	"github.com/EmmaQiaoCh/embedding-profiler/internal/reconstructor"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"
)

var _ = Describe("CSV export", func() {
	atom := zap.NewAtomicLevelAt(zap.WarnLevel)

	var recon *reconstructor.Reconstructor

	BeforeEach(func() {
		recon = reconstructor.New(domain.GetDefaultConfig(), &atom)
	})

	It("should flatten timelines into one row per labeled event", func() {
		run := createRun("node-0",
			createRawEvent("gemm", 0, "s0", 0, 0, 1.5, 0.25),
			createRawEvent("all2all", 1, "s1", 0, 1, 3.0, 2.0),
		)
		spec := &domain.InterestSpec{
			Layers: []*domain.LayerSpec{
				forwardLayer("fc1", 0, "gemm"),
				forwardLayer("emb", 0, "all2all"),
			},
		}

		timelines, err := recon.Reconstruct([]*domain.ProfileRun{run}, spec)
		Expect(err).ToNot(HaveOccurred())

		var buf bytes.Buffer
		Expect(reconstructor.WriteCSV(&buf, timelines)).To(Succeed())

		lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
		Expect(lines).To(HaveLen(3))
		Expect(lines[0]).To(Equal("host_name,device,stream,layer,event,avg_measured_time_ms,avg_iter_start_to_event_start_time_ms,samples"))
		Expect(lines[1]).To(HavePrefix("node-0,device_0,stream_0,fc1,gemm,"))
		Expect(lines[2]).To(HavePrefix("node-0,device_1,stream_1,emb,all2all,"))
	})
})

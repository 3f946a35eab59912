package jobs_test

import (
	"os"
	"path/filepath"
	"time"

	"github.com/EmmaQiaoCh/embedding-profiler/internal/domain"
	"github.com/EmmaQiaoCh/embedding-profiler/internal/server/jobs"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"
)

var _ = Describe("Registry", func() {
	atom := zap.NewAtomicLevelAt(zap.WarnLevel)

	var (
		registry *jobs.Registry
		logDir   string
	)

	spec := &domain.InterestSpec{
		Layers: []*domain.LayerSpec{
			{Name: "fc1", ForwardEvents: []string{"gemm"}, ForwardOccurrence: 0},
		},
	}

	BeforeEach(func() {
		registry = jobs.NewRegistry(domain.GetDefaultConfig(), &atom)
		logDir = GinkgoT().TempDir()

		log := `{
			"host_name": "node-0",
			"iter_time_ms": [10.0],
			"events": [
				{
					"event_name": "gemm",
					"device_id": 0,
					"stream": "s0",
					"met_times_within_this_stream": 0,
					"measured_times_ms": [1.0],
					"iter_start_to_event_start_times_ms": [0.5],
					"start_index": 0
				}
			]
		}`
		Expect(os.WriteFile(filepath.Join(logDir, "rank0.prof.json"), []byte(log), 0644)).To(Succeed())
	})

	It("should run a submitted job to completion", func() {
		job, err := registry.Submit(logDir, spec)
		Expect(err).ToNot(HaveOccurred())
		Expect(job.ID).ToNot(BeEmpty())

		Eventually(job.Finished, time.Second, 10*time.Millisecond).Should(BeTrue())
		Expect(job.Status()).To(Equal(jobs.JobComplete))
		Expect(job.Timelines).To(HaveLen(1))
		Expect(job.Timelines[0].HostName).To(Equal("node-0"))
	})

	It("should reject a submission without an interest spec", func() {
		_, err := registry.Submit(logDir, nil)
		Expect(err).To(MatchError(domain.ErrNoInterestSpec))

		_, err = registry.Submit(logDir, &domain.InterestSpec{})
		Expect(err).To(MatchError(domain.ErrNoInterestSpec))
	})

	It("should reject a submission for a missing log directory", func() {
		_, err := registry.Submit(filepath.Join(logDir, "does-not-exist"), spec)
		Expect(err).To(HaveOccurred())
	})

	It("should return registered jobs by id and reject unknown ids", func() {
		job, err := registry.Submit(logDir, spec)
		Expect(err).ToNot(HaveOccurred())

		found, err := registry.Get(job.ID)
		Expect(err).ToNot(HaveOccurred())
		Expect(found).To(BeIdenticalTo(job))

		_, err = registry.Get("no-such-job")
		Expect(err).To(MatchError(domain.ErrUnknownJob))
	})

	It("should publish per-file progress and a terminal message to subscribers", func() {
		job, err := registry.Submit(logDir, spec)
		Expect(err).ToNot(HaveOccurred())

		progress, cancel := job.Subscribe()
		defer cancel()

		timeout := time.After(time.Second)
		var messages []jobs.JobProgress
		for done := false; !done; {
			select {
			case msg, ok := <-progress:
				if !ok {
					done = true
					break
				}
				messages = append(messages, msg)
			case <-timeout:
				Fail("timed out waiting for job progress")
			}
		}

		Expect(messages).ToNot(BeEmpty())
		Expect(messages[len(messages)-1].Status).To(Equal(jobs.JobComplete))
	})

	It("should replay the terminal status to late subscribers", func() {
		job, err := registry.Submit(logDir, spec)
		Expect(err).ToNot(HaveOccurred())
		Eventually(job.Finished, time.Second, 10*time.Millisecond).Should(BeTrue())

		progress, cancel := job.Subscribe()
		defer cancel()

		msg := <-progress
		Expect(msg.Status).To(Equal(jobs.JobComplete))
		Expect(progress).To(BeClosed())
	})

	It("should report its result through the job view only once finished", func() {
		job, err := registry.Submit(logDir, spec)
		Expect(err).ToNot(HaveOccurred())
		Eventually(job.Finished, time.Second, 10*time.Millisecond).Should(BeTrue())

		view := job.View()
		Expect(view.JobID).To(Equal(job.ID))
		Expect(view.Status).To(Equal(jobs.JobComplete))
		Expect(view.CompletedAt).ToNot(BeNil())
		Expect(view.Timelines).To(HaveLen(1))
	})
})

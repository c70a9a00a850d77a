package config

import (
	"os"
	"path/filepath"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestConfig(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "config suite")
}

func writeEnvFile(dir, contents string) string {
	path := filepath.Join(dir, "webshield.env")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		panic(err)
	}
	return path
}

var _ = Describe("Default", func() {
	It("matches the documented defaults", func() {
		c := Default()
		Expect(c.AccessLogHost).To(Equal("127.0.0.1"))
		Expect(c.AccessLogPort).To(Equal(8123))
		Expect(c.BlockingTimeMin).To(Equal(60))
		Expect(c.BlockingReleaseTimeMin).To(Equal(1))
		Expect(c.TrainingMode).To(Equal(TrainingOff))
		Expect(c.PersistentUsersAllow).To(BeTrue())
		Expect(c.Detectors).To(HaveKey("tft_rps"))
		Expect(c.Detector).To(HaveLen(10))
		Expect(c.Detector["ip_rps"].DefaultThreshold.String()).To(Equal("10"))
	})
})

var _ = Describe("Load", func() {
	It("returns a fatal error when the file is missing", func() {
		_, err := Load("/nonexistent/webshield.env")
		Expect(err).To(HaveOccurred())
	})

	It("overlays file values onto defaults", func() {
		dir := GinkgoT().TempDir()
		path := writeEnvFile(dir, `
CLICKHOUSE_HOST=10.0.0.5
CLICKHOUSE_PORT=9000
BLOCKING_TYPES=tft,ipset
DETECTORS=ip_rps,tft_rps,geoip
TRAINING_MODE=real
TRAINING_MODE_DURATION_MIN=30
DETECTOR_IP_RPS_DEFAULT_THRESHOLD=25.50
DETECTOR_IP_RPS_ALLOWED_STATUSES=200,403,500
`)

		c, err := Load(path)
		Expect(err).NotTo(HaveOccurred())
		Expect(c.AccessLogHost).To(Equal("10.0.0.5"))
		Expect(c.AccessLogPort).To(Equal(9000))
		Expect(c.BlockingTypes).To(HaveKey("tft"))
		Expect(c.BlockingTypes).To(HaveKey("ipset"))
		Expect(c.Detectors).To(HaveKey("geoip"))
		Expect(c.TrainingMode).To(Equal(TrainingReal))
		Expect(c.TrainingModeDurationMin).To(Equal(30))
		Expect(c.Detector["ip_rps"].DefaultThreshold.String()).To(Equal("25.5"))
		Expect(c.Detector["ip_rps"].AllowedStatuses).To(ConsistOf(200, 403, 500))

		// Untouched detector keeps its default.
		Expect(c.Detector["tft_time"].DefaultThreshold.String()).To(Equal("10"))
	})

	It("rejects an invalid training mode", func() {
		dir := GinkgoT().TempDir()
		path := writeEnvFile(dir, "TRAINING_MODE=bogus\n")

		_, err := Load(path)
		Expect(err).To(HaveOccurred())
	})

	It("rejects an unknown detector name", func() {
		dir := GinkgoT().TempDir()
		path := writeEnvFile(dir, "DETECTORS=not_a_detector\n")

		_, err := Load(path)
		Expect(err).To(HaveOccurred())
	})

	It("rejects an unknown blocking type", func() {
		dir := GinkgoT().TempDir()
		path := writeEnvFile(dir, "BLOCKING_TYPES=bogus\n")

		_, err := Load(path)
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("derived durations", func() {
	It("converts minute-denominated keys to time.Duration", func() {
		c := Default()
		Expect(c.BlockingTime().Minutes()).To(Equal(60.0))
		Expect(c.BlockingReleaseTime().Minutes()).To(Equal(1.0))
		Expect(c.TrainingModeDuration().Minutes()).To(Equal(10.0))
		Expect(c.PersistentUsersWindowOffset().Minutes()).To(Equal(60.0))
		Expect(c.PersistentUsersWindowDuration().Minutes()).To(Equal(60.0))
		Expect(c.BlockingWindowDuration().Seconds()).To(Equal(10.0))
	})
})

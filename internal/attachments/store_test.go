package attachments_test

import (
	"bytes"
	"io"
	"log/slog"
	"os"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/opslane/access-portal/internal"
	"github.com/opslane/access-portal/internal/attachments"
)

func TestAttachments(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Attachments Suite")
}

var _ = Describe("LocalStore", func() {
	var (
		baseDir string
		store   *attachments.LocalStore
	)

	BeforeEach(func() {
		var err error
		baseDir, err = os.MkdirTemp("", "attachments-test-*")
		Expect(err).NotTo(HaveOccurred())

		logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
		store, err = attachments.NewLocalStore(baseDir, logger)
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		Expect(os.RemoveAll(baseDir)).To(Succeed())
	})

	Describe("Save", func() {
		It("should store the file under the task's directory", func() {
			path, err := store.Save("task-1", "checklist.pdf", bytes.NewReader([]byte("content")))
			Expect(err).NotTo(HaveOccurred())
			Expect(store.Exists(path)).To(BeTrue())

			rc, err := store.Open(path)
			Expect(err).NotTo(HaveOccurred())
			defer rc.Close()
			data, err := io.ReadAll(rc)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(data)).To(Equal("content"))
		})

		It("should reject a disallowed extension", func() {
			_, err := store.Save("task-1", "malware.exe", bytes.NewReader([]byte("x")))
			Expect(err).To(HaveOccurred())
			_, ok := internal.IsAppError(err)
			Expect(ok).To(BeTrue())
		})

		It("should randomize the stored filename", func() {
			first, err := store.Save("task-1", "checklist.pdf", bytes.NewReader([]byte("a")))
			Expect(err).NotTo(HaveOccurred())
			second, err := store.Save("task-1", "checklist.pdf", bytes.NewReader([]byte("b")))
			Expect(err).NotTo(HaveOccurred())
			Expect(first).NotTo(Equal(second))
		})
	})

	Describe("Delete", func() {
		It("should remove the blob", func() {
			path, err := store.Save("task-1", "checklist.pdf", bytes.NewReader([]byte("x")))
			Expect(err).NotTo(HaveOccurred())

			Expect(store.Delete(path)).To(Succeed())
			Expect(store.Exists(path)).To(BeFalse())
		})

		It("should tolerate a missing blob", func() {
			Expect(store.Delete(baseDir + "/task-9/gone.pdf")).To(Succeed())
			Expect(store.Delete("")).To(Succeed())
		})
	})

	Describe("AllowedExtension", func() {
		It("should accept the documented extensions case-insensitively", func() {
			Expect(attachments.AllowedExtension("list.PDF")).To(BeTrue())
			Expect(attachments.AllowedExtension("sheet.xlsx")).To(BeTrue())
			Expect(attachments.AllowedExtension("script.sh")).To(BeFalse())
			Expect(attachments.AllowedExtension("noext")).To(BeFalse())
		})
	})
})

package store_test

import (
	"context"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/fumin/boson"
	"github.com/fumin/boson/config"
	"github.com/fumin/boson/store"
)

var _ = Describe("Store", func() {
	var (
		s      *store.Store
		ctx    context.Context
		dbPath string
	)

	BeforeEach(func() {
		log.SetLevel(log.WarnLevel)
		ctx = context.Background()
		dbPath = filepath.Join(GinkgoT().TempDir(), "runs.db")
		var err error
		s, err = store.Open(dbPath)
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(func() {
			Expect(s.Close()).To(Succeed())
		})
	})

	run := func(name string) (*config.Config, *boson.Result) {
		cfg, err := config.Preset(name)
		Expect(err).NotTo(HaveOccurred())
		cfg.Samples = 7
		res, err := boson.Run(ctx, cfg)
		Expect(err).NotTo(HaveOccurred())
		return cfg, res
	}

	Describe("Open", func() {
		It("creates the database file", func() {
			_, err := os.Stat(dbPath)
			Expect(err).NotTo(HaveOccurred())
		})

		It("keeps runs across reopening", func() {
			cfg, res := run("rabi")
			id, err := s.Save(ctx, cfg, res)
			Expect(err).NotTo(HaveOccurred())
			Expect(s.Close()).To(Succeed())

			s, err = store.Open(dbPath)
			Expect(err).NotTo(HaveOccurred())
			r, err := s.Load(ctx, id)
			Expect(err).NotTo(HaveOccurred())
			Expect(r.Config).To(Equal(cfg))
		})
	})

	Describe("Save and Load", func() {
		It("round trips the observables", func() {
			cfg, res := run("interaction")
			id, err := s.Save(ctx, cfg, res)
			Expect(err).NotTo(HaveOccurred())
			Expect(id).NotTo(BeEmpty())

			r, err := s.Load(ctx, id)
			Expect(err).NotTo(HaveOccurred())
			Expect(r.ID).To(Equal(id))
			Expect(r.Config).To(Equal(cfg))
			Expect(r.Success).To(BeTrue())
			Expect(r.Message).To(Equal(res.Solution.Message))
			Expect(r.NFev).To(Equal(res.Solution.NFev))
			Expect(r.NSteps).To(Equal(res.Solution.NSteps))
			Expect(r.NRejected).To(Equal(res.Solution.NRejected))
			Expect(r.Times).To(Equal(res.Times))
			Expect(mat.Equal(r.Occupations, res.Occupations)).To(BeTrue())
			Expect(mat.Equal(r.Populations, res.Populations)).To(BeTrue())
		})

		It("returns ErrNotFound for unknown ids", func() {
			_, err := s.Load(ctx, "nonexistent")
			Expect(errors.Is(err, store.ErrNotFound)).To(BeTrue())
		})
	})

	Describe("List and Delete", func() {
		It("lists runs in the order they were saved", func() {
			var ids []string
			for _, name := range []string{"rabi", "interaction", "rabi"} {
				cfg, res := run(name)
				id, err := s.Save(ctx, cfg, res)
				Expect(err).NotTo(HaveOccurred())
				ids = append(ids, id)
			}

			records, err := s.List(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(records).To(HaveLen(3))
			for i, r := range records {
				Expect(r.ID).To(Equal(ids[i]))
				Expect(r.Times).To(BeNil())
			}
			Expect(records[1].Config.Name).To(Equal("interaction"))

			Expect(s.Delete(ctx, ids[1])).To(Succeed())
			records, err = s.List(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(records).To(HaveLen(2))
			_, err = s.Load(ctx, ids[1])
			Expect(errors.Is(err, store.ErrNotFound)).To(BeTrue())
		})

		It("fails to delete unknown ids", func() {
			err := s.Delete(ctx, "nonexistent")
			Expect(errors.Is(err, store.ErrNotFound)).To(BeTrue())
		})
	})
})

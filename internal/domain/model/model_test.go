package model_test

import (
	"testing"
	"time"

	"github.com/okian/epiwatch/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMetricSet_Equal(t *testing.T) {
	Convey("Given two metric sets", t, func() {
		a := model.MetricSet{
			Confirmed: model.Count(1000),
			Deaths:    model.Count(50),
			AsOf:      time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC),
		}

		Convey("Identical values compare equal regardless of AsOf", func() {
			b := a
			b.AsOf = b.AsOf.Add(24 * time.Hour)
			So(a.Equal(b), ShouldBeTrue)
		})

		Convey("A changed value breaks equality", func() {
			b := a
			b.Confirmed = model.Count(1200)
			So(a.Equal(b), ShouldBeFalse)
		})

		Convey("Known zero and unknown are different states", func() {
			b := a
			b.Deaths = model.Count(0)
			c := a
			c.Deaths = model.Unknown()
			So(b.Equal(c), ShouldBeFalse)
		})
	})
}

func TestSnapshot_Immutability(t *testing.T) {
	Convey("Given a snapshot built from a caller-owned map", t, func() {
		src := map[model.Region]model.MetricSet{
			{Country: "US"}: {Confirmed: model.Count(1000)},
		}
		snap := model.NewSnapshot(time.Now(), src, []string{"w1"})

		Convey("When the caller mutates the source map afterwards", func() {
			src[model.Region{Country: "US"}] = model.MetricSet{Confirmed: model.Count(9)}
			src[model.Region{Country: "Italy"}] = model.MetricSet{}

			Convey("Then the snapshot is unaffected", func() {
				So(snap.Len(), ShouldEqual, 1)
				m, _ := snap.Metrics(model.Region{Country: "US"})
				So(m.Confirmed, ShouldResemble, model.Count(1000))
			})
		})

		Convey("When the caller mutates returned warnings", func() {
			w := snap.Warnings()
			w[0] = "tampered"
			So(snap.Warnings()[0], ShouldEqual, "w1")
		})
	})
}

func TestNormalizeName(t *testing.T) {
	Convey("Given raw user spellings", t, func() {
		cases := map[string]string{
			"  United   States ": "united states",
			"US":                 "us",
			"Korea,\tSouth":      "korea, south",
			"":                   "",
		}
		for raw, want := range cases {
			So(model.NormalizeName(raw), ShouldEqual, want)
		}
	})
}

func TestRegion(t *testing.T) {
	Convey("Given country and province regions", t, func() {
		country := model.Region{Country: "US"}
		prov := model.Region{Country: "US", Province: "California"}

		Convey("Then keys are unique per pair", func() {
			So(country.Key(), ShouldNotEqual, prov.Key())
		})

		Convey("And String reads province-first", func() {
			So(country.String(), ShouldEqual, "US")
			So(prov.String(), ShouldEqual, "California, US")
		})
	})
}

package engine_test

import (
	"fmt"
	"log"
	"time"

	"github.com/kass/go-eco-route/pkg/citymodel"
	"github.com/kass/go-eco-route/pkg/engine"
)

func ExampleEngine_ComputeRoutes() {
	e, err := engine.New(citymodel.Default(),
		engine.WithClock(engine.FixedClock(time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC))),
		engine.WithNoise(engine.NoNoise{}),
	)
	if err != nil {
		log.Fatal(err)
	}

	start, _ := e.LookupPlace("almaly")
	end, _ := e.LookupPlace("mega center")

	routes := e.ComputeRoutes(start, end, "air")
	fmt.Println(len(routes), routes[0].Type, routes[1].Type, routes[2].Type)
	// Output: 3 recommended alternative alternative
}

func ExampleEngine_SearchLocations() {
	e, err := engine.New(citymodel.Default())
	if err != nil {
		log.Fatal(err)
	}

	for _, p := range e.SearchLocations("opera") {
		fmt.Printf("%s: %s (%.4f, %.4f)\n", p.ID, p.Name, p.Location.Lat, p.Location.Lng)
	}
	// Output: abay opera: Abay Opera House (43.2430, 76.9530)
}

func ExampleEngine_Forecast() {
	e, err := engine.New(citymodel.Default())
	if err != nil {
		log.Fatal(err)
	}

	f := e.Forecast(time.Date(2024, 1, 15, 8, 0, 0, 0, time.UTC))
	fmt.Println(f.Period)
	fmt.Println(f.Traffic)
	// Output:
	// peak
	// Heavy rush hour traffic expected
}

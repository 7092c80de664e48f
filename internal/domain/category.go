package domain

type Category string

const (
	CategoryBreaking      Category = "breaking"
	CategoryTech          Category = "tech"
	CategoryBusiness      Category = "business"
	CategorySports        Category = "sports"
	CategoryEntertainment Category = "entertainment"
	CategoryScience       Category = "science"
	CategoryHealth        Category = "health"
	CategoryWorld         Category = "world"
)

// Categories lists every category in display order.
var Categories = []Category{
	CategoryBreaking,
	CategoryTech,
	CategoryBusiness,
	CategorySports,
	CategoryEntertainment,
	CategoryScience,
	CategoryHealth,
	CategoryWorld,
}

// Style is presentation metadata only.
type Style struct {
	Color    string    `json:"color"`
	Icon     string    `json:"icon"`
	Gradient [2]string `json:"gradient"`
}

var styles = map[Category]Style{
	CategoryBreaking:      {Color: "#FF3B30", Icon: "bolt.fill", Gradient: [2]string{"#FF3B30", "#FF9500"}},
	CategoryTech:          {Color: "#007AFF", Icon: "cpu", Gradient: [2]string{"#007AFF", "#5AC8FA"}},
	CategoryBusiness:      {Color: "#34C759", Icon: "chart.line.uptrend.xyaxis", Gradient: [2]string{"#34C759", "#30D158"}},
	CategorySports:        {Color: "#FF9500", Icon: "sportscourt", Gradient: [2]string{"#FF9500", "#FFCC00"}},
	CategoryEntertainment: {Color: "#AF52DE", Icon: "film", Gradient: [2]string{"#AF52DE", "#FF2D55"}},
	CategoryScience:       {Color: "#5856D6", Icon: "atom", Gradient: [2]string{"#5856D6", "#007AFF"}},
	CategoryHealth:        {Color: "#FF2D55", Icon: "heart.fill", Gradient: [2]string{"#FF2D55", "#FF6482"}},
	CategoryWorld:         {Color: "#00C7BE", Icon: "globe", Gradient: [2]string{"#00C7BE", "#32ADE6"}},
}

// ParseCategory reports whether s names a known category.
func ParseCategory(s string) (Category, bool) {
	c := Category(s)
	_, ok := styles[c]
	return c, ok
}

func (c Category) Valid() bool {
	_, ok := styles[c]
	return ok
}

func (c Category) Style() Style {
	return styles[c]
}

package enums

import "fmt"

// MenuCategory groups menu items on the public menu.
type MenuCategory string

const (
	MenuCategoryAppetizer MenuCategory = "appetizer"
	MenuCategoryMain      MenuCategory = "main"
	MenuCategoryDessert   MenuCategory = "dessert"
	MenuCategoryBeverage  MenuCategory = "beverage"
	MenuCategorySide      MenuCategory = "side"
	MenuCategorySpecial   MenuCategory = "special"
)

var validMenuCategories = []MenuCategory{
	MenuCategoryAppetizer,
	MenuCategoryMain,
	MenuCategoryDessert,
	MenuCategoryBeverage,
	MenuCategorySide,
	MenuCategorySpecial,
}

func (c MenuCategory) String() string {
	return string(c)
}

func (c MenuCategory) IsValid() bool {
	for _, candidate := range validMenuCategories {
		if candidate == c {
			return true
		}
	}
	return false
}

func ParseMenuCategory(value string) (MenuCategory, error) {
	for _, candidate := range validMenuCategories {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid menu category %q", value)
}

package kiosk

import (
	"fmt"

	"github.com/mzollin/CocktailMixer/internal/recipe"
)

// State 售酒机界面状态
type State int

const (
	StateIntro State = iota
	StateSelectAlcohol
	StateSelectMode
	StateSelectCocktail
	StateSelectSize
	StatePouring
)

var stateNames = []string{
	"intro",
	"select_alcohol",
	"select_mode",
	"select_cocktail",
	"select_size",
	"pouring",
}

func (s State) String() string {
	if int(s) >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// MarshalText JSON中使用名称
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText 解析状态名称
func (s *State) UnmarshalText(b []byte) error {
	for i, name := range stateNames {
		if name == string(b) {
			*s = State(i)
			return nil
		}
	}
	return fmt.Errorf("unknown state %q", string(b))
}

// SessionContext 当前顾客会话，仅在进入Intro时清空
type SessionContext struct {
	Alcoholic        bool   `json:"alcoholic"`
	SelectedCocktail string `json:"selected_cocktail,omitempty"`
	ServingSizeML    uint32 `json:"serving_size_ml"`
}

// HasSelection 是否已选定鸡尾酒
func (s SessionContext) HasSelection() bool {
	return s.SelectedCocktail != ""
}

// Mode 选酒方式
type Mode string

const (
	ModeByName            Mode = "by_name"
	ModeByIngredients     Mode = "by_ingredients"
	ModeRecent            Mode = "recent"
	ModeCustom            Mode = "custom"
	ModeRandomDrink       Mode = "random_drink"
	ModeRandomIngredients Mode = "random_ingredients"
)

// Modes 选择方式菜单顺序
var Modes = []Mode{ModeByName, ModeByIngredients, ModeRecent, ModeCustom, ModeRandomDrink, ModeRandomIngredients}

// IntentType 显示层发出的用户意图
type IntentType string

const (
	IntentStart         IntentType = "start"
	IntentChooseAlcohol IntentType = "choose_alcohol"
	IntentSelectMode    IntentType = "select_mode"
	IntentSelectSize    IntentType = "select_size"
	IntentStartPour     IntentType = "start_pour"
	IntentCancel        IntentType = "cancel"
)

// Intent 用户意图
type Intent struct {
	Type      IntentType `json:"type"`
	Alcoholic bool       `json:"alcoholic,omitempty"`
	Mode      Mode       `json:"mode,omitempty"`
	SizeML    uint32     `json:"size_ml,omitempty"`
}

// 意图构造
func Start() Intent { return Intent{Type: IntentStart} }

func ChooseAlcohol(alcoholic bool) Intent {
	return Intent{Type: IntentChooseAlcohol, Alcoholic: alcoholic}
}

func BrowseByName() Intent { return SelectMode(ModeByName) }

func SelectMode(m Mode) Intent { return Intent{Type: IntentSelectMode, Mode: m} }

func SelectSize(ml uint32) Intent { return Intent{Type: IntentSelectSize, SizeML: ml} }

func StartPour() Intent { return Intent{Type: IntentStartPour} }

func Cancel() Intent { return Intent{Type: IntentCancel} }

// View 交给显示层渲染的完整快照
type View struct {
	Seq          uint64         `json:"seq"`
	State        State          `json:"state"`
	Session      SessionContext `json:"session"`
	Modes        []Mode         `json:"modes,omitempty"`
	Cocktails    []string       `json:"cocktails,omitempty"`
	Highlighted  int            `json:"highlighted"`
	ServingSizes []uint32       `json:"serving_sizes,omitempty"`
	PourID       string         `json:"pour_id,omitempty"`
	Doses        []recipe.Dose  `json:"doses,omitempty"`
	ScaleGrams   uint32         `json:"scale_grams"`
	Notice       string         `json:"notice,omitempty"`
}

// Display 显示层
type Display interface {
	Render(view View)
}

// DisplayFunc 函数适配
type DisplayFunc func(view View)

func (f DisplayFunc) Render(view View) { f(view) }

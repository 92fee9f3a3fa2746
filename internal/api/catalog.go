package api

import "net/http"

// productIconURL is the vendor portal prefix for product icons.
const productIconURL = "https://portal-ww.ecouser.net/api/pim/file/get/"

// Product is one device model in the IoT catalogue.
type Product struct {
	ID        string `json:"_id"`
	Name      string `json:"name"`
	Icon      string `json:"icon"`
	UILogicID string `json:"UILogicId"`
	OTA       bool   `json:"ota"`
	IconURL   string `json:"iconUrl"`
}

// ProductEntry maps a device class to its product.
type ProductEntry struct {
	ClassID string  `json:"classid"`
	Product Product `json:"product"`
}

func product(classID, id, name, icon string, ota bool) ProductEntry {
	return ProductEntry{
		ClassID: classID,
		Product: Product{
			ID:        id,
			Name:      name,
			Icon:      icon,
			UILogicID: classID,
			OTA:       ota,
			IconURL:   productIconURL + icon,
		},
	}
}

// productIotMap is the static model catalogue the app uses to pick a UI.
var productIotMap = []ProductEntry{
	product("dl8fht", "5acb0fa87c295c0001876ecf", "DEEBOT 600 Series", "5acc32067c295c0001876eea", false),
	product("02uwxm", "5ae1481e7ccd1a0001e1f69e", "DEEBOT OZMO Slim10 Series", "5b1dddc48bc45700014035a1", false),
	product("y79a7u", "5b04c0227ccd1a0001e1f6a8", "DEEBOT OZMO 900", "5b04c0217ccd1a0001e1f6a7", true),
	product("jr3pqa", "5b43077b8bc457000140363e", "DEEBOT 711", "5b5ac4cc8d5a56000111e769", true),
	product("uv242z", "5b5149b4ac0b87000148c128", "DEEBOT 710", "5b5ac4e45f21100001882bb9", true),
	product("ls1ok3", "5b6561060506b100015c8868", "DEEBOT 900 Series", "5ba4a2cb6c2f120001c32839", true),
}

func (s *Server) handleGetProductIotMap(_ *http.Request) (any, error) {
	return productIotMap, nil
}

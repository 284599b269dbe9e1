package main

import (
	"context"
	"fmt"
	"log"

	"github.com/example/vintagemart/internal/config"
	"github.com/example/vintagemart/internal/datamodels/product"
	"github.com/example/vintagemart/internal/repository/mysql"
)

// 演示商品，方便本地快速跑通流程
var demoProducts = []product.Product{
	{Name: "Vintage Levi's 501 牛仔裤", Description: "90年代美产，石洗浅蓝", Price: 18900, Gender: "men", Condition: "very_good", Category: "jeans"},
	{Name: "Burberry 经典格纹风衣", Description: "三色格纹内衬，尺码 M", Price: 89900, Gender: "women", Condition: "good", Category: "coats"},
	{Name: "Harris Tweed 人字纹西装外套", Description: "纯羊毛，苏格兰手织", Price: 45900, Gender: "men", Condition: "like_new", Category: "jackets"},
	{Name: "Ralph Lauren 羊绒毛衣", Description: "驼色圆领，无起球", Price: 32900, Gender: "women", Condition: "very_good", Category: "knitwear"},
	{Name: "Dr. Martens 1460 八孔靴", Description: "英产老款，鞋底九成新", Price: 55900, Gender: "women", Condition: "good", Category: "shoes"},
	{Name: "Carhartt Detroit 工装夹克", Description: "帆布面料，做旧水洗", Price: 38900, Gender: "men", Condition: "good", Category: "jackets"},
	{Name: "真丝波点连衣裙", Description: "80年代复古裁剪，尺码 S", Price: 25900, Gender: "women", Condition: "very_good", Category: "dresses"},
	{Name: "Wrangler 灯芯绒衬衫", Description: "焦糖色，珍珠扣", Price: 15900, Gender: "men", Condition: "like_new", Category: "shirts"},
	{Name: "Coach 复古马鞍包", Description: "植鞣革，五金完好", Price: 49900, Gender: "women", Condition: "good", Category: "bags"},
	{Name: "Barbour 油蜡夹克", Description: "Bedale 款，需重新上蜡", Price: 65900, Gender: "men", Condition: "good", Category: "jackets"},
	{Name: "羊毛格纹半身裙", Description: "苏格兰产，高腰 A 字", Price: 19900, Gender: "women", Condition: "very_good", Category: "skirts"},
	{Name: "Champion Reverse Weave 卫衣", Description: "美产老标，灰色", Price: 22900, Gender: "men", Condition: "good", Category: "sweatshirts"},
}

func main() {
	cfg, err := config.Load("")
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	db := mysql.Init(&cfg.MySQL)
	repo := mysql.NewProductRepository(db)
	ctx := context.Background()

	fmt.Printf("写入 %d 件演示商品...\n", len(demoProducts))
	for i := range demoProducts {
		p := demoProducts[i]
		if err := repo.Create(ctx, &p); err != nil {
			log.Fatalf("failed to create product %q: %v", p.Name, err)
		}
		fmt.Printf("  ✅ %s  %s  (%.2f)\n", p.ID, p.Name, float64(p.Price)/100.0)
	}
	fmt.Println("完成")
}

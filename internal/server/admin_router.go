package server

import (
	"github.com/google/uuid"
	"github.com/kataras/iris/v12"

	"github.com/example/vintagemart/internal/auth"
	"github.com/example/vintagemart/internal/config"
	"github.com/example/vintagemart/internal/datamodels/product"
	"github.com/example/vintagemart/internal/datamodels/user"
	"github.com/example/vintagemart/internal/infra/redis"
	"github.com/example/vintagemart/internal/middleware"
	"github.com/example/vintagemart/internal/repository/mysql"
	"github.com/example/vintagemart/internal/service"
)

// RegisterAdminRoutes 注册后台管理路由，挂在独立端口的管理进程上
func RegisterAdminRoutes(app *iris.Application, cfg *config.Config) {
	db := mysql.Init(&cfg.MySQL)
	redisClient := redis.Init(&cfg.Redis)

	productRepo := mysql.NewProductRepository(db)
	orderRepo := mysql.NewOrderRepository(db)

	tokenCache := auth.NewTokenCache(redisClient, 0)
	resolver := auth.NewResolver(&cfg.JWT, tokenCache, nil)

	productSvc := service.NewProductService(productRepo)
	orderSvc := service.NewOrderService(orderRepo, productRepo)

	admin := app.Party("/admin", func(ctx iris.Context) {
		identity, err := resolver.RequireUser(ctx.Request().Context(), ctx.GetHeader("Authorization"))
		if err != nil || !identity.IsAdmin(user.RoleAdmin) {
			ctx.StopWithJSON(403, iris.Map{"code": 403, "msg": "需要管理员权限"})
			return
		}
		ctx.Values().Set(identityKey, identity)
		ctx.Next()
	})

	// 商品管理
	admin.Get("/products", func(ctx iris.Context) {
		list, err := productSvc.ListAll(ctx.Request().Context())
		if err != nil {
			ctx.StopWithJSON(500, iris.Map{"code": 500, "msg": err.Error()})
			return
		}
		ctx.JSON(iris.Map{"code": 0, "data": list})
	})

	admin.Post("/products", func(ctx iris.Context) {
		var p product.Product
		if err := ctx.ReadJSON(&p); err != nil {
			ctx.StopWithJSON(400, iris.Map{"code": 400, "msg": err.Error()})
			return
		}
		if err := productSvc.Create(ctx.Request().Context(), &p); err != nil {
			fail(ctx, err)
			return
		}
		ctx.StatusCode(iris.StatusCreated)
		ctx.JSON(iris.Map{"code": 0, "data": p})
	})

	admin.Put("/products/{id:string}", func(ctx iris.Context) {
		pid, err := uuid.Parse(ctx.Params().Get("id"))
		if err != nil {
			ctx.StopWithJSON(400, iris.Map{"code": 400, "msg": "无效商品ID"})
			return
		}
		var p product.Product
		if err := ctx.ReadJSON(&p); err != nil {
			ctx.StopWithJSON(400, iris.Map{"code": 400, "msg": err.Error()})
			return
		}
		p.ID = pid
		if err := productSvc.Update(ctx.Request().Context(), &p); err != nil {
			fail(ctx, err)
			return
		}
		ctx.JSON(iris.Map{"code": 0, "data": p})
	})

	// 下架走归档，不做物理删除，历史订单还引用着商品行
	admin.Delete("/products/{id:string}", func(ctx iris.Context) {
		pid, err := uuid.Parse(ctx.Params().Get("id"))
		if err != nil {
			ctx.StopWithJSON(400, iris.Map{"code": 400, "msg": "无效商品ID"})
			return
		}
		if err := productSvc.Archive(ctx.Request().Context(), pid); err != nil {
			fail(ctx, err)
			return
		}
		ctx.JSON(iris.Map{"code": 0, "msg": "已归档"})
	})

	// 订单管理
	admin.Get("/orders", func(ctx iris.Context) {
		limit := ctx.URLParamIntDefault("limit", 50)
		list, err := orderSvc.ListRecent(ctx.Request().Context(), limit)
		if err != nil {
			ctx.StopWithJSON(500, iris.Map{"code": 500, "msg": err.Error()})
			return
		}
		ctx.JSON(iris.Map{"code": 0, "data": list})
	})

	admin.Get("/orders/{id:string}", func(ctx iris.Context) {
		oid, err := uuid.Parse(ctx.Params().Get("id"))
		if err != nil {
			ctx.StopWithJSON(400, iris.Map{"code": 400, "msg": "无效订单ID"})
			return
		}
		details, err := orderSvc.GetDetails(ctx.Request().Context(), identityOf(ctx), oid)
		if err != nil {
			fail(ctx, err)
			return
		}
		ctx.JSON(iris.Map{"code": 0, "data": details})
	})

	admin.Put("/orders/{id:string}/status", func(ctx iris.Context) {
		oid, err := uuid.Parse(ctx.Params().Get("id"))
		if err != nil {
			ctx.StopWithJSON(400, iris.Map{"code": 400, "msg": "无效订单ID"})
			return
		}
		var req struct {
			Status string `json:"status"`
		}
		if err := ctx.ReadJSON(&req); err != nil {
			ctx.StopWithJSON(400, iris.Map{"code": 400, "msg": err.Error()})
			return
		}
		o, err := orderSvc.UpdateStatus(ctx.Request().Context(), oid, req.Status)
		if err != nil {
			fail(ctx, err)
			return
		}
		ctx.JSON(iris.Map{"code": 0, "data": o})
	})

	// 运行指标
	admin.Get("/stats", func(ctx iris.Context) {
		ctx.JSON(iris.Map{"code": 0, "data": service.GetMonitor().GetStats()})
	})

	admin.Get("/ratelimit", func(ctx iris.Context) {
		ctx.JSON(iris.Map{"code": 0, "data": middleware.CheckoutLimiterStats()})
	})
}
